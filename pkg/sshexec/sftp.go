package sshexec

import (
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

// Sftp copies files without relying on a local rsync binary.
type Sftp struct {
	conn   *ssh.Client
	client *sftp.Client
}

func NewSftp(c *ClientConf) (*Sftp, error) {
	conn, err := Dial(c)
	if err != nil {
		return nil, err
	}
	client, err := sftp.NewClient(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("could not start sftp subsystem: %w", err)
	}
	return &Sftp{conn: conn, client: client}, nil
}

func (s *Sftp) Close() {
	s.client.Close()
	s.conn.Close()
}

// TransferStats counts what a copy moved.
type TransferStats struct {
	Files int
	Bytes int64
}

// Upload copies a local file or directory tree to remote. When remote is an
// existing directory the source is placed inside it.
func (s *Sftp) Upload(local string, remote string) (*TransferStats, error) {
	stats := &TransferStats{}
	if st, err := s.client.Stat(remote); err == nil && st.IsDir() {
		remote = path.Join(remote, filepath.Base(local))
	}
	return stats, s.upload(local, remote, stats)
}

func (s *Sftp) upload(local string, remote string, stats *TransferStats) error {
	info, err := os.Stat(local)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return s.uploadFile(local, remote, info.Mode().Perm(), stats)
	}
	if err := s.client.MkdirAll(remote); err != nil {
		return fmt.Errorf("failed to create remote directory %s: %w", remote, err)
	}
	entries, err := os.ReadDir(local)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := s.upload(filepath.Join(local, e.Name()), path.Join(remote, e.Name()), stats); err != nil {
			return err
		}
	}
	return nil
}

func (s *Sftp) uploadFile(local string, remote string, perm os.FileMode, stats *TransferStats) error {
	src, err := os.Open(local)
	if err != nil {
		return err
	}
	defer src.Close()
	if err := s.client.MkdirAll(path.Dir(remote)); err != nil {
		return fmt.Errorf("failed to create remote directory: %w", err)
	}
	dst, err := s.client.OpenFile(remote, os.O_WRONLY|os.O_CREATE|os.O_TRUNC)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", remote, err)
	}
	n, err := dst.ReadFrom(src)
	dst.Close()
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", remote, err)
	}
	stats.Files++
	stats.Bytes += n
	return s.client.Chmod(remote, perm)
}

// Download copies a remote file or directory tree to local. When local is an
// existing directory the source is placed inside it.
func (s *Sftp) Download(remote string, local string) (*TransferStats, error) {
	stats := &TransferStats{}
	if st, err := os.Stat(local); err == nil && st.IsDir() {
		local = filepath.Join(local, path.Base(remote))
	}
	return stats, s.download(remote, local, stats)
}

func (s *Sftp) download(remote string, local string, stats *TransferStats) error {
	info, err := s.client.Stat(remote)
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", remote, err)
	}
	if !info.IsDir() {
		return s.downloadFile(remote, local, stats)
	}
	if err := os.MkdirAll(local, 0755); err != nil {
		return err
	}
	entries, err := s.client.ReadDir(remote)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := s.download(path.Join(remote, e.Name()), filepath.Join(local, e.Name()), stats); err != nil {
			return err
		}
	}
	return nil
}

func (s *Sftp) downloadFile(remote string, local string, stats *TransferStats) error {
	src, err := s.client.Open(remote)
	if err != nil {
		return err
	}
	defer src.Close()
	if err := os.MkdirAll(filepath.Dir(local), 0755); err != nil {
		return err
	}
	dst, err := os.Create(local)
	if err != nil {
		return err
	}
	defer dst.Close()
	n, err := io.Copy(dst, src)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", remote, err)
	}
	stats.Files++
	stats.Bytes += n
	return nil
}
