// Package bus 是面試房服務與外部協作者之間的 NATS 傳輸層。
//
// 邀請信（<prefix>.mail.invitation）、錄影管線交接（<prefix>.pipeline.handoff）
// 與房間事件（<prefix>.events.<type>）發到 JetStream，讓寄信服務、管線與其他
// 消費者離線時訊息也不會遺失。管線回報的進度與結果（<prefix>.pipeline.progress、
// <prefix>.pipeline.outcome）以 durable consumer 讀回。媒體伺服器的房間與
// peer 配發（<prefix>.media.*）需要立即拿到回覆，走 core NATS request/reply，
// 不能落在 stream 的 subject 範圍內。
package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

var errNilBus = errors.New("nil bus")

type Bus struct {
	conn           *nats.Conn
	js             nats.JetStreamContext
	requestTimeout time.Duration
}

// New 連線到 NATS；requestTimeout 是媒體配發在呼叫端沒有 deadline 時的上限
func New(url string, requestTimeout time.Duration, opts ...nats.Option) (*Bus, error) {
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, err
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, err
	}

	return &Bus{conn: nc, js: js, requestTimeout: requestTimeout}, nil
}

// EnsureStream 建立或更新承接邀請信、管線與房間事件的 stream，
// 沒有 stream 時 JetStream publish 會直接失敗
func (b *Bus) EnsureStream(name string, subjects ...string) error {
	if b == nil {
		return errNilBus
	}
	if len(subjects) == 0 {
		return fmt.Errorf("stream %s: no subjects", name)
	}

	cfg := &nats.StreamConfig{
		Name:      name,
		Subjects:  subjects,
		Retention: nats.LimitsPolicy,
		Storage:   nats.FileStorage,
	}
	_, err := b.js.StreamInfo(name)
	switch {
	case errors.Is(err, nats.ErrStreamNotFound):
		_, err = b.js.AddStream(cfg)
	case err == nil:
		_, err = b.js.UpdateStream(cfg)
	}
	if err != nil {
		return fmt.Errorf("ensure stream %s: %w", name, err)
	}
	return nil
}

// Close 先 drain，讓還在送的邀請信與管線交接完成
func (b *Bus) Close() {
	if b == nil {
		return
	}
	if err := b.conn.Drain(); err != nil {
		b.conn.Close()
	}
}

// Publish 把 v 編成 JSON 發到 stream，等到 JetStream 確認收到才回傳
func (b *Bus) Publish(ctx context.Context, subj string, v any) error {
	if b == nil {
		return errNilBus
	}

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", subj, err)
	}

	if _, err := b.js.Publish(subj, data, nats.Context(ctx)); err != nil {
		return fmt.Errorf("publish %s: %w", subj, err)
	}
	return nil
}

// Request 媒體配發用的同步呼叫，回覆解到 out；out 為 nil 時忽略回覆內容
func (b *Bus) Request(ctx context.Context, subj string, v, out any) error {
	if b == nil {
		return errNilBus
	}

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", subj, err)
	}

	if _, ok := ctx.Deadline(); !ok && b.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.requestTimeout)
		defer cancel()
	}

	msg, err := b.conn.RequestWithContext(ctx, subj, data)
	if err != nil {
		return fmt.Errorf("request %s: %w", subj, err)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(msg.Data, out)
}

// consumer 是 Subscribe 回傳的 durable consumer，關閉可以重複呼叫
type consumer struct {
	sub  *nats.Subscription
	once sync.Once
	err  error
}

func (c *consumer) Close() error {
	c.once.Do(func() { c.err = c.sub.Drain() })
	return c.err
}

// Subscribe 以 durable 名稱讀取管線回報，重啟後從上次 ack 的位置繼續。
// fn 回傳錯誤時 Nak 讓訊息重送，不會重試的錯誤要由 fn 自己吞掉
func (b *Bus) Subscribe(ctx context.Context, subj, durable string, fn func(ctx context.Context, data []byte) error) (io.Closer, error) {
	if b == nil {
		return nil, errNilBus
	}
	if fn == nil {
		return nil, errors.New("nil handler")
	}

	sub, err := b.js.Subscribe(subj, func(msg *nats.Msg) {
		msgCtx, cancel := context.WithCancel(ctx)
		defer cancel()

		if err := fn(msgCtx, msg.Data); err != nil {
			_ = msg.Nak()
			return
		}
		_ = msg.Ack()
	}, nats.Durable(durable), nats.ManualAck(), nats.AckExplicit())
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", subj, err)
	}

	c := &consumer{sub: sub}
	go func() {
		<-ctx.Done()
		_ = c.Close()
	}()
	return c, nil
}
