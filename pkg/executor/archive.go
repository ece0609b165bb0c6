package executor

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"time"

	"github.com/google/uuid"
	"github.com/wentf9/xops-ci/pkg/logger"
	"github.com/wentf9/xops-ci/pkg/sftp"
)

// SFTP 只能传输单个文件，目录传输通过 "打包 -> 传输 -> 解包" 实现
// 两端各自使用独立命名的归档文件，传输结束后两端都会删除
// 解包失败时已解出的部分不会回滚

const cleanupTimeout = 30 * time.Second

func archiveName() string {
	return path.Join("/tmp", fmt.Sprintf("xops-%s.tar", uuid.NewString()))
}

// packCommand 在 src 的父目录中打包，归档内只包含 basename(src)
func packCommand(src, archive string) string {
	src = path.Clean(src)
	return fmt.Sprintf("tar -C %s -cf %s %s", shellQuote(path.Dir(src)), archive, shellQuote(path.Base(src)))
}

func unpackCommand(dst, archive string) string {
	return fmt.Sprintf("mkdir -p %s && tar -C %s -xf %s", shellQuote(dst), shellQuote(dst), archive)
}

// copyOutRecursive 本机打包，上传后在远端解包到 dst
func (r *RemoteSession) copyOutRecursive(ctx context.Context, src, dst string) error {
	localArchive, remoteArchive := archiveName(), archiveName()
	defer removeLocal(localArchive)
	if res := r.local.Run(ctx, packCommand(src, localArchive)); !res.OK() {
		return fmt.Errorf("pack %s failed: %s", src, res.Output)
	}

	defer r.removeRemote(ctx, remoteArchive)
	if err := r.putFile(ctx, localArchive, remoteArchive); err != nil {
		return fmt.Errorf("transfer archive: %w", err)
	}

	if res := r.Run(ctx, unpackCommand(dst, remoteArchive)); !res.OK() {
		return fmt.Errorf("unpack into %s:%s failed: %s", r.host, dst, res.Output)
	}
	return nil
}

// copyInRecursive 远端打包，下载后在本机解包到 dst
func (r *RemoteSession) copyInRecursive(ctx context.Context, src, dst string) error {
	localArchive, remoteArchive := archiveName(), archiveName()
	defer r.removeRemote(ctx, remoteArchive)
	if res := r.Run(ctx, packCommand(src, remoteArchive)); !res.OK() {
		return fmt.Errorf("pack %s:%s failed: %s", r.host, src, res.Output)
	}

	defer removeLocal(localArchive)
	if err := r.getFile(ctx, remoteArchive, localArchive); err != nil {
		return fmt.Errorf("transfer archive: %w", err)
	}

	if res := r.local.Run(ctx, unpackCommand(dst, localArchive)); !res.OK() {
		return fmt.Errorf("unpack into %s failed: %s", dst, res.Output)
	}
	return nil
}

func removeLocal(archive string) {
	if err := os.Remove(archive); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logger.Logger.Warn("failed to remove archive", "host", localHost, "path", archive, "err", err)
	}
}

// removeRemote 即使 ctx 已取消也要清理远端归档
func (r *RemoteSession) removeRemote(ctx context.Context, archive string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()
	err := r.withSFTP(ctx, func(_ context.Context, client *sftp.Client) error {
		return client.Remove(archive)
	})
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		logger.Logger.Warn("failed to remove archive", "host", r.host, "path", archive, "err", err)
	}
}
