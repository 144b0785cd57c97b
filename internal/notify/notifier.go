package notify

import (
	"context"
	"sync"
)

// Notifier sends lottery announcements to admins or the public channel.
type Notifier interface {
	NotifyAdmins(ctx context.Context, msg string)
	NotifyGroup(ctx context.Context, msg string)
}

// Noop is a no-op notifier.
type Noop struct{}

func (Noop) NotifyAdmins(context.Context, string) {}
func (Noop) NotifyGroup(context.Context, string)  {}

// Recorder keeps messages in memory.
type Recorder struct {
	mu     sync.Mutex
	admins []string
	group  []string
}

func (r *Recorder) NotifyAdmins(_ context.Context, msg string) {
	r.mu.Lock()
	r.admins = append(r.admins, msg)
	r.mu.Unlock()
}

func (r *Recorder) NotifyGroup(_ context.Context, msg string) {
	r.mu.Lock()
	r.group = append(r.group, msg)
	r.mu.Unlock()
}

func (r *Recorder) Admins() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.admins...)
}

func (r *Recorder) Group() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.group...)
}
