package model

import "encoding/json"

type optionState uint8

const (
	optionAbsent optionState = iota
	optionNull
	optionSet
)

// Option is a patch field that distinguishes an absent value (leave
// unchanged), an explicit null (clear) and a set value.
// The zero value is absent.
type Option[T any] struct {
	value T
	state optionState
}

// Some returns an Option holding v.
func Some[T any](v T) Option[T] {
	return Option[T]{value: v, state: optionSet}
}

// Null returns an Option that clears the field.
func Null[T any]() Option[T] {
	return Option[T]{state: optionNull}
}

func (o Option[T]) IsAbsent() bool { return o.state == optionAbsent }
func (o Option[T]) IsNull() bool   { return o.state == optionNull }
func (o Option[T]) IsSet() bool    { return o.state == optionSet }

// Get returns the value and whether it is set.
func (o Option[T]) Get() (T, bool) {
	return o.value, o.state == optionSet
}

// Ptr returns a pointer to the value, or nil when the option is not set.
func (o Option[T]) Ptr() *T {
	if o.state != optionSet {
		return nil
	}
	v := o.value
	return &v
}

// UnmarshalJSON is only invoked for keys present in the document, so a
// missing key stays absent.
func (o *Option[T]) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*o = Null[T]()
		return nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*o = Some(v)
	return nil
}

func (o Option[T]) MarshalJSON() ([]byte, error) {
	if o.state != optionSet {
		return []byte("null"), nil
	}
	return json.Marshal(o.value)
}
