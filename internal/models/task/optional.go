package task

import "encoding/json"

// Optional различает "поле не передано" и "поле передано" (в том числе null)
type Optional[T any] struct {
	value T
	set   bool
}

func Set[T any](value T) Optional[T] {
	return Optional[T]{value: value, set: true}
}

func Unset[T any]() Optional[T] {
	return Optional[T]{}
}

func (o Optional[T]) IsSet() bool {
	return o.set
}

func (o Optional[T]) Get() (T, bool) {
	return o.value, o.set
}

// UnmarshalJSON вызывается только если ключ присутствует в теле запроса
func (o *Optional[T]) UnmarshalJSON(data []byte) error {
	var value T
	if err := json.Unmarshal(data, &value); err != nil {
		return err
	}
	o.value = value
	o.set = true
	return nil
}

// Patch - частичное обновление задачи
type Patch struct {
	Title       Optional[*string] `json:"title"`
	Description Optional[*string] `json:"description"`
}

func (p Patch) IsEmpty() bool {
	return !p.Title.IsSet() && !p.Description.IsSet()
}

// Options переводит патч в набор опций, незаданные поля пропускаются
func (p Patch) Options() []TaskOption {
	opts := make([]TaskOption, 0, 2)
	if title, ok := p.Title.Get(); ok {
		opts = append(opts, WithTitle(title))
	}
	if description, ok := p.Description.Get(); ok {
		opts = append(opts, WithDescription(description))
	}
	return opts
}
