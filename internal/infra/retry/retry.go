// Package retry оборачивает cenkalti/backoff в политику повторов,
// общую для сетевых адаптеров.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy задаёт число повторов и шаг экспоненциальной задержки.
type Policy struct {
	MaxRetries uint64
	Initial    time.Duration
	Max        time.Duration
}

// Hinted — ошибка, которая сама подсказывает, сколько ждать до повтора
// (например, Telegram flood wait или Retry-After).
type Hinted interface {
	error
	RetryAfter() time.Duration
}

// Permanent помечает ошибку как неповторяемую.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return backoff.Permanent(err)
}

// Do выполняет fn, повторяя при ошибке согласно политике.
// Ошибки, обёрнутые Permanent, возвращаются сразу и без обёртки.
func Do[T any](ctx context.Context, p Policy, fn func() (T, error)) (T, error) {
	b := &hintedBackOff{next: p.backOff()}
	op := func() (T, error) {
		res, err := fn()
		b.hint = 0
		var h Hinted
		if err != nil && errors.As(err, &h) {
			b.hint = h.RetryAfter()
		}
		return res, err
	}
	var policy backoff.BackOff = b
	policy = backoff.WithMaxRetries(policy, p.MaxRetries)
	return backoff.RetryWithData(op, backoff.WithContext(policy, ctx))
}

func (p Policy) backOff() backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	if p.Initial > 0 {
		exp.InitialInterval = p.Initial
	}
	if p.Max > 0 {
		exp.MaxInterval = p.Max
	}
	exp.MaxElapsedTime = 0
	exp.Reset()
	return exp
}

// hintedBackOff подменяет экспоненциальную задержку подсказкой сервера.
type hintedBackOff struct {
	next backoff.BackOff
	hint time.Duration
}

func (h *hintedBackOff) NextBackOff() time.Duration {
	d := h.next.NextBackOff()
	if h.hint > 0 {
		return h.hint
	}
	return d
}

func (h *hintedBackOff) Reset() {
	h.hint = 0
	h.next.Reset()
}
