package job

import (
	"github.com/getsentry/sentry-go"

	"mediaqueue/models"
)

// ReportToSentry sends a terminal job failure to Sentry. Without an
// initialized client it does nothing.
func ReportToSentry(job *models.ConversionJob, attempts int, err error) {
	if err == nil {
		return
	}
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("job_id", job.Options.ID)
		scope.SetTag("output_format", job.Options.OutputFormat)
		scope.SetTag("upload_kind", string(job.UploadKind))
		scope.SetContext("job", map[string]interface{}{
			"owner":         job.Options.Owner,
			"output_name":   job.Options.OutputName,
			"original_mime": job.OriginalMime,
			"attempts":      attempts,
		})
		sentry.CaptureException(err)
	})
}
