package sftp

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"

	"golang.org/x/sync/errgroup"
)

// Upload 上传单个普通文件
// remotePath 是已存在的目录时，文件放到该目录下并保留原文件名
func (c *Client) Upload(ctx context.Context, localPath, remotePath string, progress ProgressCallback) error {
	info, err := os.Stat(localPath)
	if err != nil {
		return fmt.Errorf("stat local path failed: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory, recursive copy required", localPath)
	}
	if remoteStat, err := c.sftpClient.Stat(remotePath); err == nil && remoteStat.IsDir() {
		remotePath = c.JoinPath(remotePath, filepath.Base(localPath))
	}
	return c.uploadFile(ctx, localPath, remotePath, info.Size(), info.Mode(), progress)
}

// Download 下载单个普通文件
// localPath 是已存在的目录时，文件放到该目录下并保留原文件名
func (c *Client) Download(ctx context.Context, remotePath, localPath string, progress ProgressCallback) error {
	info, err := c.sftpClient.Stat(remotePath)
	if err != nil {
		return fmt.Errorf("stat remote path failed: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory, recursive copy required", remotePath)
	}
	if stat, err := os.Stat(localPath); err == nil && stat.IsDir() {
		localPath = filepath.Join(localPath, path.Base(remotePath))
	}
	return c.downloadFile(ctx, remotePath, localPath, info.Size(), info.Mode(), progress)
}

// Remove 删除远程文件
func (c *Client) Remove(remotePath string) error {
	return c.sftpClient.Remove(remotePath)
}

// ================== 单文件多线程分块逻辑 ==================

// chunkedReaderAt/WriterAt 由 *os.File 与 *sftp.File 共同实现
type chunkedReaderAt interface {
	io.Reader
	io.ReaderAt
}

type chunkedWriterAt interface {
	io.Writer
	io.WriterAt
}

func (c *Client) uploadFile(ctx context.Context, localPath, remotePath string, size int64, mode os.FileMode, progress ProgressCallback) error {
	srcFile, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer srcFile.Close()

	dstFile, err := c.sftpClient.Create(remotePath)
	if err != nil {
		return fmt.Errorf("create remote file %s: %w", remotePath, err)
	}
	defer dstFile.Close()

	if err := c.sftpClient.Chmod(remotePath, mode.Perm()); err != nil {
		return fmt.Errorf("chmod remote file %s: %w", remotePath, err)
	}
	return c.transfer(ctx, srcFile, dstFile, size, progress)
}

func (c *Client) downloadFile(ctx context.Context, remotePath, localPath string, size int64, mode os.FileMode, progress ProgressCallback) error {
	srcFile, err := c.sftpClient.Open(remotePath)
	if err != nil {
		return fmt.Errorf("open remote file %s: %w", remotePath, err)
	}
	defer srcFile.Close()

	dstFile, err := os.OpenFile(localPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode.Perm())
	if err != nil {
		return err
	}
	defer dstFile.Close()

	return c.transfer(ctx, srcFile, dstFile, size, progress)
}

func (c *Client) transfer(ctx context.Context, src chunkedReaderAt, dst chunkedWriterAt, size int64, progress ProgressCallback) error {
	// 只有1个线程或文件很小，直接流式传输 (减少 overhead)
	if c.config.ThreadsPerFile <= 1 || size < c.config.ChunkSize {
		return streamTransfer(ctx, src, dst, progress)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(c.config.ThreadsPerFile)
	chunkSize := c.config.ChunkSize

	for offset := int64(0); offset < size; offset += chunkSize {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			current := min(chunkSize, size-offset)

			// ReadAt/WriteAt 是并发安全的
			buf := make([]byte, current)
			n, err := src.ReadAt(buf, offset)
			if err != nil && err != io.EOF {
				return fmt.Errorf("read at %d failed: %w", offset, err)
			}
			if n == 0 {
				return nil
			}
			if _, err := dst.WriteAt(buf[:n], offset); err != nil {
				return fmt.Errorf("write at %d failed: %w", offset, err)
			}
			if progress != nil {
				progress(n)
			}
			return nil
		})
	}
	return g.Wait()
}

// 简单的流式传输兜底
func streamTransfer(ctx context.Context, r io.Reader, w io.Writer, progress ProgressCallback) error {
	buf := make([]byte, 32*1024)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := r.Read(buf)
		if n > 0 {
			if _, wErr := w.Write(buf[:n]); wErr != nil {
				return wErr
			}
			if progress != nil {
				progress(n)
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}
