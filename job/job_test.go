package job

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"mediaqueue/encoder"
	"mediaqueue/models"
	"mediaqueue/probe"
)

// fakeStore records every call in order.
type fakeStore struct {
	mu    sync.Mutex
	calls []string
	fail  bool
}

func (s *fakeStore) record(call string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, call)
	return !s.fail
}

func (s *fakeStore) UpdateStatus(id string, status models.Status) bool {
	return s.record("status:" + string(status))
}

func (s *fakeStore) UpdateVisibility(id string, visible bool) bool {
	return s.record(fmt.Sprintf("visibility:%t", visible))
}

func (s *fakeStore) UpdateHash(id, path string) bool {
	return s.record("hash")
}

func (s *fakeStore) UpdateDistributionID(id, path string) bool {
	return s.record("identifier")
}

func (s *fakeStore) Calls() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return strings.Join(s.calls, ",")
}

// fakeEngine fails the first failures calls, then writes the output.
type fakeEngine struct {
	mu       sync.Mutex
	failures int
	calls    int
	inputs   []string
	specs    []models.OutputSpec
	block    bool
}

func (e *fakeEngine) Convert(ctx context.Context, input string, spec models.OutputSpec, obs encoder.Observer) encoder.Result {
	e.mu.Lock()
	e.calls++
	n := e.calls
	e.inputs = append(e.inputs, input)
	e.specs = append(e.specs, spec)
	e.mu.Unlock()

	if _, err := os.Stat(input); err != nil {
		return encoder.Result{Err: fmt.Errorf("input not staged: %w", err)}
	}
	if e.block {
		<-ctx.Done()
		return encoder.Result{Err: ctx.Err()}
	}
	if e.failures < 0 || n <= e.failures {
		return encoder.Result{Err: errors.New("encoder exploded")}
	}
	os.MkdirAll(filepath.Dir(spec.OutputPath), 0755)
	if err := os.WriteFile(spec.OutputPath, []byte("out"), 0644); err != nil {
		return encoder.Result{Err: err}
	}
	if obs.OnProgress != nil {
		obs.OnProgress(100)
	}
	return encoder.Result{Duration: time.Second}
}

type fixedProber struct{ w, h int }

func (p fixedProber) Probe(context.Context, string) (*probe.Info, error) {
	return &probe.Info{Width: p.w, Height: p.h}, nil
}

type env struct {
	temp, media string
	engine      *fakeEngine
	store       *fakeStore
	retry       *RetryController
}

func newEnv(t *testing.T, engine *fakeEngine, prober probe.Prober) *env {
	t.Helper()
	root := t.TempDir()
	reg := encoder.NewRegistry()
	reg.Register("webp", engine)
	reg.Register("mp4", engine)
	reg.Register("copy", engine)
	e := &env{
		temp:   filepath.Join(root, "tmp"),
		media:  filepath.Join(root, "media"),
		engine: engine,
		store:  &fakeStore{},
	}
	e.retry = &RetryController{
		Engines:    reg,
		Negotiator: probe.NewNegotiator(prober),
		TempPath:   e.temp,
		MediaPath:  e.media,
		MaxRetries: DefaultMaxRetries,
	}
	return e
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func newJob(buf []byte) *models.ConversionJob {
	return &models.ConversionJob{
		Buffer:       buf,
		OriginalMime: "image/png",
		UploadKind:   models.UploadMedia,
		Options: models.ConvertOptions{
			ID:           "job-1",
			OutputName:   "picture",
			Width:        640,
			Height:       640,
			OutputFormat: "webp",
			Owner:        "alice",
		},
	}
}

func assertNoTempFiles(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil && !os.IsNotExist(err) {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("%d temp artifacts leaked in %s", len(entries), dir)
	}
}

func TestRunAlwaysFailingMakesSixAttempts(t *testing.T) {
	e := newEnv(t, &fakeEngine{failures: -1}, fixedProber{300, 200})
	out := e.retry.Run(context.Background(), newJob([]byte("data")))

	if out.Err == nil {
		t.Fatal("expected failure")
	}
	if out.Attempts != 6 || e.engine.calls != 6 {
		t.Errorf("attempts = %d, engine calls = %d, want 6", out.Attempts, e.engine.calls)
	}
	if out.Interrupted {
		t.Error("budget exhaustion reported as interruption")
	}
	assertNoTempFiles(t, e.temp)
}

func TestRunRetriesWithFreshArtifacts(t *testing.T) {
	e := newEnv(t, &fakeEngine{failures: 2}, fixedProber{300, 200})
	out := e.retry.Run(context.Background(), newJob([]byte("data")))

	if out.Err != nil {
		t.Fatalf("Run: %v", out.Err)
	}
	if out.Attempts != 3 {
		t.Errorf("attempts = %d, want 3", out.Attempts)
	}
	seen := map[string]bool{}
	for i, in := range e.engine.inputs {
		if seen[in] {
			t.Errorf("artifact %s reused", in)
		}
		seen[in] = true
		if !strings.HasPrefix(filepath.Base(in), fmt.Sprintf("picture.%d.", i+1)) {
			t.Errorf("artifact %s does not carry attempt %d", in, i+1)
		}
	}
	if want := filepath.Join(e.media, "alice", "picture.webp"); out.OutputPath != want {
		t.Errorf("output = %s, want %s", out.OutputPath, want)
	}
	assertNoTempFiles(t, e.temp)
}

func TestRunAttemptTimeout(t *testing.T) {
	e := newEnv(t, &fakeEngine{block: true}, fixedProber{300, 200})
	e.retry.MaxRetries = 1
	e.retry.AttemptTimeout = 20 * time.Millisecond

	out := e.retry.Run(context.Background(), newJob([]byte("data")))
	if out.Err == nil || !strings.Contains(out.Err.Error(), "exceeded") {
		t.Fatalf("err = %v, want timeout", out.Err)
	}
	if out.Attempts != 2 || out.Interrupted {
		t.Errorf("attempts = %d interrupted = %t", out.Attempts, out.Interrupted)
	}
	assertNoTempFiles(t, e.temp)
}

func TestRunMissingEngine(t *testing.T) {
	e := newEnv(t, &fakeEngine{}, fixedProber{300, 200})
	job := newJob([]byte("data"))
	job.Options.OutputFormat = "avif"

	out := e.retry.Run(context.Background(), job)
	if !errors.Is(out.Err, encoder.ErrEncoderNotFound) {
		t.Fatalf("err = %v", out.Err)
	}
	if out.Attempts != 0 || e.engine.calls != 0 {
		t.Errorf("attempts = %d calls = %d", out.Attempts, e.engine.calls)
	}
}

func TestRunCopyKeepsExtension(t *testing.T) {
	e := newEnv(t, &fakeEngine{}, fixedProber{300, 200})
	job := newJob([]byte("ID3"))
	job.OriginalMime = "audio/mpeg"
	job.Options.OutputFormat = "copy"

	out := e.retry.Run(context.Background(), job)
	if out.Err != nil {
		t.Fatal(out.Err)
	}
	if filepath.Ext(out.OutputPath) != ".mp3" {
		t.Errorf("output = %s", out.OutputPath)
	}
	if e.engine.specs[0].Size != "" {
		t.Errorf("copy should skip negotiation, size = %q", e.engine.specs[0].Size)
	}
}

func TestRunOwnerCannotEscapeMediaRoot(t *testing.T) {
	e := newEnv(t, &fakeEngine{}, fixedProber{300, 200})
	job := newJob([]byte("data"))
	job.Options.Owner = "../../etc"
	job.Options.OutputName = "../passwd"

	out := e.retry.Run(context.Background(), job)
	if out.Err != nil {
		t.Fatal(out.Err)
	}
	if !strings.HasPrefix(out.OutputPath, e.media+string(filepath.Separator)) {
		t.Errorf("output escaped media root: %s", out.OutputPath)
	}
}

type failureSpy struct {
	attempts int
	calls    int
}

func (f *failureSpy) Record(job *models.ConversionJob, attempts int, cause error) error {
	f.calls++
	f.attempts = attempts
	return nil
}

func TestHandleSmallPNGCompletes(t *testing.T) {
	e := newEnv(t, &fakeEngine{}, probe.ImageHeader{})
	tracker := NewTracker()
	p := NewProcessor(e.retry, e.store, tracker, nil)

	job := newJob(pngBytes(t, 300, 200))
	tracker.Add(job.Options.ID, job.Options.Owner)
	if st, _ := tracker.State(job.Options.ID); st.Status != models.StatusPending {
		t.Fatalf("initial status = %s", st.Status)
	}

	if err := p.Handle(context.Background(), job); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	want := "status:processing,visibility:true,hash,identifier,status:completed"
	if got := e.store.Calls(); got != want {
		t.Errorf("store calls = %s, want %s", got, want)
	}
	spec := e.engine.specs[0]
	if spec.Format != "webp" || spec.Size != "300x?" {
		t.Errorf("spec = %+v, want webp 300x?", spec)
	}
	st, _ := tracker.State(job.Options.ID)
	if st.Status != models.StatusCompleted || st.Attempts != 1 || st.Progress != 100 {
		t.Errorf("tracker state = %+v", st)
	}
	assertNoTempFiles(t, e.temp)
}

func TestHandleFailingJob(t *testing.T) {
	e := newEnv(t, &fakeEngine{failures: -1}, fixedProber{300, 200})
	tracker := NewTracker()
	p := NewProcessor(e.retry, e.store, tracker, nil)
	spy := &failureSpy{}
	p.Failures = spy
	var reported error
	p.Report = func(_ *models.ConversionJob, _ int, err error) { reported = err }

	job := newJob([]byte("data"))
	if err := p.Handle(context.Background(), job); err != nil {
		t.Fatal(err)
	}

	calls := e.store.Calls()
	if calls != "status:processing,status:failed" {
		t.Errorf("store calls = %s", calls)
	}
	if strings.Contains(calls, "visibility:true") {
		t.Error("visibility set on a failed job")
	}
	if spy.calls != 1 || spy.attempts != 6 {
		t.Errorf("failure record calls = %d attempts = %d", spy.calls, spy.attempts)
	}
	if reported == nil {
		t.Error("terminal failure not reported")
	}
	if st, _ := tracker.State(job.Options.ID); st.Status != models.StatusFailed || st.Error == "" {
		t.Errorf("tracker state = %+v", st)
	}
	assertNoTempFiles(t, e.temp)
}

func TestHandleDropsInvalidJob(t *testing.T) {
	e := newEnv(t, &fakeEngine{}, fixedProber{300, 200})
	p := NewProcessor(e.retry, e.store, nil, nil)

	job := newJob(nil)
	if err := p.Handle(context.Background(), job); err != nil {
		t.Fatal(err)
	}
	if calls := e.store.Calls(); calls != "" {
		t.Errorf("store calls = %s, want none", calls)
	}
	if e.engine.calls != 0 {
		t.Error("engine ran for an invalid job")
	}
	if _, ok := p.Tracker.State(job.Options.ID); ok {
		t.Error("invalid job tracked")
	}
}

func TestHandleSkipsTerminalJob(t *testing.T) {
	e := newEnv(t, &fakeEngine{}, fixedProber{300, 200})
	p := NewProcessor(e.retry, e.store, nil, nil)
	job := newJob([]byte("data"))

	p.Handle(context.Background(), job)
	before := e.store.Calls()
	p.Handle(context.Background(), job)
	if e.store.Calls() != before || e.engine.calls != 1 {
		t.Errorf("completed job ran again: %s", e.store.Calls())
	}
}

func TestHandleInterrupted(t *testing.T) {
	e := newEnv(t, &fakeEngine{block: true}, fixedProber{300, 200})
	p := NewProcessor(e.retry, e.store, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	err := p.Handle(ctx, newJob([]byte("data")))
	if !errors.Is(err, ErrInterrupted) {
		t.Fatalf("err = %v, want ErrInterrupted", err)
	}
	if calls := e.store.Calls(); calls != "status:processing" {
		t.Errorf("store calls = %s", calls)
	}
	assertNoTempFiles(t, e.temp)
}

func TestPersistenceFailuresDoNotAffectOutcome(t *testing.T) {
	e := newEnv(t, &fakeEngine{}, fixedProber{300, 200})
	e.store.fail = true
	tracker := NewTracker()
	p := NewProcessor(e.retry, e.store, tracker, nil)

	job := newJob([]byte("data"))
	if err := p.Handle(context.Background(), job); err != nil {
		t.Fatal(err)
	}
	if got := strings.Count(e.store.Calls(), ","); got != 4 {
		t.Errorf("expected all five updates to be attempted, got %s", e.store.Calls())
	}
	if st, _ := tracker.State(job.Options.ID); st.Status != models.StatusCompleted {
		t.Errorf("status = %s", st.Status)
	}
}

type panicEngine struct{ calls int }

func (e *panicEngine) Convert(context.Context, string, models.OutputSpec, encoder.Observer) encoder.Result {
	e.calls++
	panic("codec table corrupted")
}

func TestHandlePanickingEngineFailsJob(t *testing.T) {
	e := newEnv(t, &fakeEngine{}, fixedProber{300, 200})
	engine := &panicEngine{}
	e.retry.Engines.Register("webp", engine)
	tracker := NewTracker()
	p := NewProcessor(e.retry, e.store, tracker, nil)
	spy := &failureSpy{}
	p.Failures = spy

	job := newJob([]byte("data"))
	if err := p.Handle(context.Background(), job); err != nil {
		t.Fatalf("Handle returned %v; a panicking engine must end in a terminal status", err)
	}
	if calls := e.store.Calls(); calls != "status:processing,status:failed" {
		t.Errorf("store calls = %s", calls)
	}
	if engine.calls != 6 || spy.attempts != 6 {
		t.Errorf("engine calls = %d, recorded attempts = %d, want 6", engine.calls, spy.attempts)
	}
	if st, _ := tracker.State(job.Options.ID); st.Status != models.StatusFailed || !strings.Contains(st.Error, "panicked") {
		t.Errorf("tracker state = %+v", st)
	}
	assertNoTempFiles(t, e.temp)
}

func TestHandlePanicOutsideAttemptFailsJob(t *testing.T) {
	e := newEnv(t, &fakeEngine{}, fixedProber{300, 200})
	e.retry.Engines = nil // Run panics on the nil registry
	tracker := NewTracker()
	p := NewProcessor(e.retry, e.store, tracker, nil)

	if err := p.Handle(context.Background(), newJob([]byte("data"))); err != nil {
		t.Fatal(err)
	}
	if calls := e.store.Calls(); calls != "status:processing,status:failed" {
		t.Errorf("store calls = %s", calls)
	}
}
