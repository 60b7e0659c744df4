package config

import (
	"fmt"
	"strings"
)

type listFlag struct {
	sep     string
	allowed map[string]bool
	value   string
	values  []string
}

func commaListFlag(allowed ...string) *listFlag {
	return newListFlag(",", allowed...)
}

func newListFlag(sep string, allowed ...string) *listFlag {
	lf := &listFlag{
		sep:     sep,
		allowed: make(map[string]bool),
	}

	for _, a := range allowed {
		lf.allowed[a] = true
	}

	return lf
}

func (lf *listFlag) Set(value string) error {
	if lf == nil {
		return nil
	}

	if value == "" {
		lf.value = ""
		lf.values = nil
		return nil
	}

	values := strings.Split(value, lf.sep)
	if len(lf.allowed) > 0 {
		for _, v := range values {
			if !lf.allowed[v] {
				return fmt.Errorf("value not allowed: %s", v)
			}
		}
	}

	lf.value = value
	lf.values = values
	return nil
}

func (lf *listFlag) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var value string
	if err := unmarshal(&value); err != nil {
		return err
	}

	return lf.Set(value)
}

func (lf *listFlag) String() string {
	if lf == nil {
		return ""
	}

	return lf.value
}
