package ingest

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jlaffaye/ftp"
)

// FTPSource downloads a file from an FTP mirror.
type FTPSource struct {
	Host     string // host:port
	Path     string
	User     string
	Password string
	Timeout  time.Duration

	maxElapsed time.Duration
}

func NewFTPSource(host, path string) *FTPSource {
	return &FTPSource{
		Host:       host,
		Path:       path,
		User:       "anonymous",
		Password:   "anonymous",
		Timeout:    30 * time.Second,
		maxElapsed: 2 * time.Minute,
	}
}

// Location describes the source for ingest run records.
func (f *FTPSource) Location() string {
	return fmt.Sprintf("ftp://%s%s", f.Host, f.Path)
}

// Fetch retrieves the file. Connection failures are retried; a login or
// missing-file error is not.
func (f *FTPSource) Fetch(ctx context.Context) ([]byte, error) {
	var body []byte
	operation := func() error {
		conn, err := ftp.Dial(f.Host, ftp.DialWithTimeout(f.Timeout), ftp.DialWithContext(ctx))
		if err != nil {
			return fmt.Errorf("ftp dial: %w", err)
		}
		defer conn.Quit()

		if err := conn.Login(f.User, f.Password); err != nil {
			return backoff.Permanent(fmt.Errorf("ftp login: %w", err))
		}

		resp, err := conn.Retr(f.Path)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("ftp retr %s: %w", f.Path, err))
		}
		defer resp.Close()

		body, err = io.ReadAll(resp)
		if err != nil {
			return fmt.Errorf("read body: %w", err)
		}
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = f.maxElapsed
	if err := backoff.Retry(operation, backoff.WithContext(bo, ctx)); err != nil {
		return nil, err
	}
	return body, nil
}
