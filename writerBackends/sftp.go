package writerbackends

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net"
	"path"
	"strings"
	"time"

	"mediaqueue/logger"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

const sftpDialTimeout = 10 * time.Second

// sftpTarget is the parsed form of stored SFTP credentials.
type sftpTarget struct {
	addr       string
	user       string
	remotePath string
	auth       ssh.AuthMethod
	hostKeys   ssh.HostKeyCallback
}

// parseSFTPTarget reads host, user and remotePath plus either password or
// privateKey (raw PEM or base64). port defaults to 22; hostKey, in
// authorized_keys format, pins the server key.
func parseSFTPTarget(accessInfo map[string]string) (*sftpTarget, error) {
	host, user, remotePath := accessInfo["host"], accessInfo["user"], accessInfo["remotePath"]
	if host == "" || user == "" || remotePath == "" {
		return nil, errors.New("missing required accessInfo keys: host, user, remotePath")
	}
	port := accessInfo["port"]
	if port == "" {
		port = "22"
	}

	auth, err := sftpAuth(accessInfo["privateKey"], accessInfo["password"])
	if err != nil {
		return nil, err
	}
	hostKeys, err := hostKeyCallback(accessInfo["hostKey"])
	if err != nil {
		return nil, err
	}
	return &sftpTarget{
		addr:       net.JoinHostPort(host, port),
		user:       user,
		remotePath: remotePath,
		auth:       auth,
		hostKeys:   hostKeys,
	}, nil
}

func sftpAuth(privateKey, password string) (ssh.AuthMethod, error) {
	switch {
	case privateKey != "":
		pem, err := base64.StdEncoding.DecodeString(privateKey)
		if err != nil {
			pem = []byte(privateKey)
		}
		signer, err := ssh.ParsePrivateKey(pem)
		if err != nil {
			return nil, fmt.Errorf("parse private key: %w", err)
		}
		return ssh.PublicKeys(signer), nil
	case password != "":
		return ssh.Password(password), nil
	}
	return nil, errors.New("no auth method provided; set password or privateKey")
}

// hostKeyCallback pins the server key when one is stored in authorized_keys
// format; otherwise any host key is accepted.
func hostKeyCallback(hostKey string) (ssh.HostKeyCallback, error) {
	if strings.TrimSpace(hostKey) == "" {
		return ssh.InsecureIgnoreHostKey(), nil
	}
	pub, _, _, _, err := ssh.ParseAuthorizedKey([]byte(hostKey))
	if err != nil {
		return nil, fmt.Errorf("parse host key: %w", err)
	}
	return ssh.FixedHostKey(pub), nil
}

// connect dials with ctx and returns an SFTP session; closing it also closes
// the SSH connection.
func (t *sftpTarget) connect(ctx context.Context) (*sftp.Client, func(), error) {
	d := net.Dialer{Timeout: sftpDialTimeout}
	conn, err := d.DialContext(ctx, "tcp", t.addr)
	if err != nil {
		return nil, nil, fmt.Errorf("dial %s: %w", t.addr, err)
	}
	cfg := &ssh.ClientConfig{
		User:            t.user,
		Auth:            []ssh.AuthMethod{t.auth},
		HostKeyCallback: t.hostKeys,
		Timeout:         sftpDialTimeout,
	}
	sshConn, chans, reqs, err := ssh.NewClientConn(conn, t.addr, cfg)
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("ssh handshake with %s: %w", t.addr, err)
	}
	sshClient := ssh.NewClient(sshConn, chans, reqs)
	client, err := sftp.NewClient(sshClient)
	if err != nil {
		sshClient.Close()
		return nil, nil, fmt.Errorf("start sftp session: %w", err)
	}
	return client, func() {
		client.Close()
		sshClient.Close()
	}, nil
}

// UploadToSFTPWithCreds writes reader to remotePath on an SFTP server,
// creating missing parent directories.
func UploadToSFTPWithCreds(ctx context.Context, accessInfo map[string]string, reader io.Reader) error {
	target, err := parseSFTPTarget(accessInfo)
	if err != nil {
		return err
	}
	client, closeFn, err := target.connect(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	if dir := path.Dir(target.remotePath); dir != "." && dir != "/" {
		if err := client.MkdirAll(dir); err != nil {
			return fmt.Errorf("ensure remote dir %s: %w", dir, err)
		}
	}

	f, err := client.Create(target.remotePath)
	if err != nil {
		return fmt.Errorf("create remote file %s: %w", target.remotePath, err)
	}
	if _, err := f.ReadFrom(reader); err != nil {
		f.Close()
		return fmt.Errorf("write remote file %s: %w", target.remotePath, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close remote file %s: %w", target.remotePath, err)
	}

	logger.Infof("Mirrored %s to sftp://%s", target.remotePath, target.addr)
	return nil
}
