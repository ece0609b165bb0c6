package runner

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/wentf9/xops-ci/pkg/executor"
	"github.com/wentf9/xops-ci/pkg/logger"
	"github.com/wentf9/xops-ci/pkg/utils"
)

// DefaultWorkers 远大于通常的目标数量，任务主要阻塞在网络和进程等待上
const DefaultWorkers = 64

// Operation 对单个目标执行操作，返回是否成功和说明信息
type Operation[T any] func(ctx context.Context, target T) (bool, string)

// Outcome 是单个目标的执行结果
type Outcome[T any] struct {
	Target  T
	Success bool
	Message string
}

// Report 汇总所有目标的结果，顺序与输入一致
type Report[T any] struct {
	Success  bool
	Outcomes []Outcome[T]
}

// Messages 返回所有目标的说明信息，失败的目标也包含在内
func (r Report[T]) Messages() []string {
	msgs := make([]string, 0, len(r.Outcomes))
	for _, o := range r.Outcomes {
		msgs = append(msgs, o.Message)
	}
	return msgs
}

// Failed 返回失败的目标
func (r Report[T]) Failed() []T {
	var failed []T
	for _, o := range r.Outcomes {
		if !o.Success {
			failed = append(failed, o.Target)
		}
	}
	return failed
}

type options struct {
	workers uint
}

type Option func(*options)

func WithWorkers(n uint) Option {
	return func(o *options) {
		if n > 0 {
			o.workers = n
		}
	}
}

// Dispatch 对每个目标并发执行 op，等待全部完成后按输入顺序汇总
// 单个任务 panic 只会使该目标失败，不影响其他任务
func Dispatch[T any](ctx context.Context, targets []T, op Operation[T], opts ...Option) Report[T] {
	o := options{workers: DefaultWorkers}
	for _, opt := range opts {
		opt(&o)
	}
	wp := utils.NewWorkerPool(o.workers)

	// 每个任务只写自己的下标，不需要加锁
	outcomes := make([]Outcome[T], len(targets))
	for i, target := range targets {
		outcomes[i] = Outcome[T]{Target: target, Message: fmt.Sprintf("%v: not run", target)}
		wp.Execute(func() {
			// recover 放在任务内部，只有这里知道该写哪个结果
			defer func() {
				if r := recover(); r != nil {
					logger.Logger.Error("operation panicked", "target", fmt.Sprint(target), "panic", r, "stack", string(debug.Stack()))
					outcomes[i].Success = false
					outcomes[i].Message = fmt.Sprintf("%v: panic: %v", target, r)
				}
			}()
			ok, msg := op(ctx, target)
			outcomes[i].Success = ok
			outcomes[i].Message = msg
		})
	}
	wp.Wait()

	report := Report[T]{Success: true, Outcomes: outcomes}
	for _, out := range outcomes {
		report.Success = report.Success && out.Success
	}
	return report
}

// HostFunc 在目标主机的 Session 上执行操作
type HostFunc func(ctx context.Context, s executor.Session) (bool, string)

// ForEachHost 为每个主机单独打开一个 Session 执行 fn，结束后关闭
// 打开失败只影响该主机
func ForEachHost(ctx context.Context, factory *executor.Factory, hosts []string, fn HostFunc, opts ...Option) Report[string] {
	return Dispatch(ctx, hosts, func(ctx context.Context, host string) (bool, string) {
		var ok bool
		var msg string
		err := factory.With(ctx, host, func(s executor.Session) error {
			ok, msg = fn(ctx, s)
			return nil
		})
		if err != nil {
			return false, fmt.Sprintf("%s: %v", host, err)
		}
		return ok, msg
	}, opts...)
}
