package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
)

// StringList is a list of strings stored as a JSON array in a text column.
type StringList []string

// ParseStringList decodes a JSON array of strings. Blank entries are dropped.
func ParseStringList(data []byte) (StringList, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return StringList{}, nil
	}

	var raw []any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode string list: %w", err)
	}

	list := make(StringList, 0, len(raw))
	for i, v := range raw {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("decode string list: element %d is %T, want string", i, v)
		}
		if s = strings.TrimSpace(s); s != "" {
			list = append(list, s)
		}
	}
	return list, nil
}

func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	data, err := json.Marshal([]string(l))
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func (l *StringList) Scan(src any) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*l = StringList{}
		return nil
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		return fmt.Errorf("scan string list: unsupported type %T", src)
	}

	parsed, err := ParseStringList(data)
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}
