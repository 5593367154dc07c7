package notifier

import (
	"context"
	"sync"
)

// Locker 按键互斥：闸门检查 → 发送 → 写审计 在同一把锁内完成
// 返回错误时 unlock 仍可能非 nil（已拿到的部分锁），调用方需要释放
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// LockKey (设备, 接收人) 锁键
func LockKey(deviceID, recipient string) string {
	return deviceID + "|" + recipient
}

// LocalLocker 进程内按键互斥锁，无人持有的键会被回收
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	ch   chan struct{}
	refs int
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: map[string]*keyLock{}}
}

func (l *LocalLocker) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	kl, ok := l.locks[key]
	if !ok {
		kl = &keyLock{ch: make(chan struct{}, 1)}
		l.locks[key] = kl
	}
	kl.refs++
	l.mu.Unlock()

	select {
	case kl.ch <- struct{}{}:
	case <-ctx.Done():
		l.unref(key, kl)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-kl.ch
			l.unref(key, kl)
		})
	}, nil
}

func (l *LocalLocker) unref(key string, kl *keyLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	kl.refs--
	if kl.refs == 0 {
		delete(l.locks, key)
	}
}

// ChainLocker 依次获取多把锁（本地锁在前，分布式锁在后），逆序释放
// 后续锁获取失败时保留已拿到的锁并返回错误
type ChainLocker struct {
	lockers []Locker
}

func NewChainLocker(lockers ...Locker) *ChainLocker {
	return &ChainLocker{lockers: lockers}
}

func (c *ChainLocker) Lock(ctx context.Context, key string) (func(), error) {
	var unlocks []func()
	release := func() {
		for i := len(unlocks) - 1; i >= 0; i-- {
			unlocks[i]()
		}
	}

	for _, locker := range c.lockers {
		unlock, err := locker.Lock(ctx, key)
		if err != nil {
			return release, err
		}
		unlocks = append(unlocks, unlock)
	}
	return release, nil
}
