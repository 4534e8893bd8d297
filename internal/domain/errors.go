package domain

import "errors"

var (
	// ErrEmptyChat возвращается, если адрес чата не задан.
	ErrEmptyChat = errors.New("chat is empty")
	// ErrInactive возвращается компонентом, которому не хватило конфигурации.
	ErrInactive = errors.New("component is inactive")
	// ErrQuotaExceeded — генеративный бэкенд исчерпал квоту или ограничил частоту.
	ErrQuotaExceeded = errors.New("quota exceeded")
	// ErrModelUnavailable — модель не найдена или недоступна.
	ErrModelUnavailable = errors.New("model unavailable")
)
