package client

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/factcheck/internal/model"
)

const (
	// DefaultTimeout は1試行あたりのタイムアウト。Web検索を伴うため分単位。
	DefaultTimeout = 3 * time.Minute
	// DefaultRetryDelay はリトライ間隔の基準値。n回目のリトライはn倍待つ。
	DefaultRetryDelay = 3 * time.Second
	// DefaultMaxRetries は自動リトライの最大回数。
	DefaultMaxRetries = 2
)

// Transport は1回分の検証リクエストを送信する。
type Transport interface {
	Verify(ctx context.Context, subjectID string) (*model.Verdict, error)
}

// Config はControllerの動作設定。ゼロ値の項目はデフォルト値を使用する。
// MaxRetriesに負の値を指定した場合はリトライしない。
type Config struct {
	Timeout    time.Duration
	RetryDelay time.Duration
	MaxRetries int
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = DefaultRetryDelay
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	} else if c.MaxRetries == 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	return c
}

// entry は1対象の1回分のリクエスト（リトライを含む）。
type entry struct {
	state  State
	cancel context.CancelFunc
	result Result
	done   chan struct{}
}

// Controller は対象ごとのリクエスト状態を管理する。
// 成功した判定結果はミラーに保持し、以降のStartはネットワークを使わずに完了する。
// 全メソッドは複数のgoroutineから安全に呼び出せる。
type Controller struct {
	transport Transport
	config    Config
	logger    *slog.Logger

	ctx      context.Context
	stop     context.CancelFunc
	wg       sync.WaitGroup
	mu       sync.Mutex
	closed   bool
	entries  map[string]*entry
	mirror   map[string]model.Verdict
	handlers []func(Result)
}

// NewController はControllerを生成する。
func NewController(transport Transport, cfg Config, logger *slog.Logger) *Controller {
	ctx, stop := context.WithCancel(context.Background())
	return &Controller{
		transport: transport,
		config:    cfg.withDefaults(),
		logger:    logger,
		ctx:       ctx,
		stop:      stop,
		entries:   make(map[string]*entry),
		mirror:    make(map[string]model.Verdict),
	}
}

// OnResult は成功・失敗時に呼ばれるハンドラを登録する。
// キャンセルされたリクエストでは呼ばれない。
func (c *Controller) OnResult(fn func(Result)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers = append(c.handlers, fn)
}

// Start は対象の検証を開始し、開始後の状態を返す。
// 既にリクエスト中（リトライ待ちを含む）の場合は何もしない。
// ミラーに結果がある場合はネットワークを使わずにSucceededとなる。
func (c *Controller) Start(subjectID string) State {
	c.mu.Lock()

	if c.closed {
		c.mu.Unlock()
		return StateCancelled
	}
	if e, ok := c.entries[subjectID]; ok && e.state == StateRequesting {
		c.mu.Unlock()
		return StateRequesting
	}

	if v, ok := c.mirror[subjectID]; ok {
		verdict := v
		e := &entry{
			state: StateSucceeded,
			done:  make(chan struct{}),
			result: Result{
				SubjectID: subjectID,
				State:     StateSucceeded,
				Verdict:   &verdict,
				FromCache: true,
			},
		}
		close(e.done)
		c.entries[subjectID] = e
		handlers := c.snapshotHandlers()
		c.mu.Unlock()

		notify(handlers, e.result)
		return StateSucceeded
	}

	ctx, cancel := context.WithCancel(c.ctx)
	e := &entry{state: StateRequesting, cancel: cancel, done: make(chan struct{})}
	c.entries[subjectID] = e
	c.wg.Add(1)
	c.mu.Unlock()

	go c.run(ctx, subjectID, e)
	return StateRequesting
}

// Cancel は対象のリクエストを中止する。中止した場合はtrueを返す。
// 中止したリクエストはリトライされず、ハンドラも呼ばれない。
func (c *Controller) Cancel(subjectID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[subjectID]
	if !ok || e.state != StateRequesting {
		return false
	}
	e.state = StateCancelled
	e.cancel()
	return true
}

// Close は全てのリクエストを中止し、実行中のgoroutineの終了を待つ。
// Close後のStartはStateCancelledを返す。
func (c *Controller) Close() {
	c.mu.Lock()
	c.closed = true
	for _, e := range c.entries {
		if e.state == StateRequesting {
			e.state = StateCancelled
		}
	}
	c.mu.Unlock()

	c.stop()
	c.wg.Wait()
}

// State は対象の現在の状態を返す。
func (c *Controller) State(subjectID string) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[subjectID]; ok {
		return e.state
	}
	return StateIdle
}

// Cached はミラーに保持している判定結果を返す。
func (c *Controller) Cached(subjectID string) (*model.Verdict, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.mirror[subjectID]
	if !ok {
		return nil, false
	}
	return &v, true
}

// Wait は対象のリクエストが完了するまで待ち、結果を返す。
// リクエストを開始していない対象はStateIdleの結果を即座に返す。
func (c *Controller) Wait(ctx context.Context, subjectID string) (Result, error) {
	c.mu.Lock()
	e, ok := c.entries[subjectID]
	c.mu.Unlock()
	if !ok {
		return Result{SubjectID: subjectID, State: StateIdle}, nil
	}

	select {
	case <-e.done:
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return e.result, nil
}

func (c *Controller) run(ctx context.Context, subjectID string, e *entry) {
	defer c.wg.Done()

	for attempt := 1; ; attempt++ {
		attemptCtx, cancelAttempt := context.WithTimeout(ctx, c.config.Timeout)
		verdict, err := c.transport.Verify(attemptCtx, subjectID)
		timedOut := ctx.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded)
		cancelAttempt()

		if ctx.Err() != nil {
			c.finish(subjectID, e, Result{SubjectID: subjectID, State: StateCancelled, Attempt: attempt})
			return
		}

		if err == nil {
			c.finish(subjectID, e, Result{SubjectID: subjectID, State: StateSucceeded, Verdict: verdict, Attempt: attempt})
			return
		}

		kind, retryable := classify(err, timedOut)
		if !retryable || attempt > c.config.MaxRetries {
			c.logger.Warn("検証リクエストが失敗しました",
				slog.String("subject_id", subjectID),
				slog.String("kind", string(kind)),
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()),
			)
			c.finish(subjectID, e, Result{SubjectID: subjectID, State: StateFailed, Err: err, Kind: kind, Attempt: attempt})
			return
		}

		delay := c.config.RetryDelay * time.Duration(attempt)
		c.logger.Info("検証リクエストを再試行します",
			slog.String("subject_id", subjectID),
			slog.String("kind", string(kind)),
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay),
			slog.String("error", err.Error()),
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			c.finish(subjectID, e, Result{SubjectID: subjectID, State: StateCancelled, Attempt: attempt})
			return
		case <-timer.C:
		}
	}
}

// finish はリクエストの最終結果を記録し、キャンセル以外ならハンドラに通知する。
func (c *Controller) finish(subjectID string, e *entry, result Result) {
	c.mu.Lock()
	if e.state == StateCancelled {
		result = Result{SubjectID: subjectID, State: StateCancelled, Attempt: result.Attempt}
	}
	e.state = result.State
	e.result = result
	if result.State == StateSucceeded && result.Verdict != nil {
		c.mirror[subjectID] = *result.Verdict
	}
	close(e.done)
	handlers := c.snapshotHandlers()
	c.mu.Unlock()

	if result.State != StateCancelled {
		notify(handlers, result)
	}
}

func (c *Controller) snapshotHandlers() []func(Result) {
	return append(([]func(Result))(nil), c.handlers...)
}

func notify(handlers []func(Result), result Result) {
	for _, fn := range handlers {
		fn(result)
	}
}
