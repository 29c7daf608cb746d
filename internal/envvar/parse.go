// Copyright (C) 2025 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package envvar

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

func parse[T Value](raw string) (T, error) {
	var out T
	switch p := any(&out).(type) {
	case *bool:
		b, err := ParseBool(raw)
		if err != nil {
			return out, err
		}
		*p = b
	case *int32:
		n, err := strconv.ParseInt(raw, 10, 32)
		if err != nil {
			return out, fmt.Errorf("%w: %q is not a 32-bit integer", ErrMalformed, raw)
		}
		*p = int32(n)
	case *string:
		*p = raw
	case *[]string:
		list, err := ParseList(raw)
		if err != nil {
			return out, err
		}
		*p = list
	}
	return out, nil
}

// ParseBool accepts "true", "1", "yes", "on", "enable", "enabled" and their
// negative counterparts, case insensitive. Anything else is malformed.
func ParseBool(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "true", "1", "yes", "on", "enable", "enabled":
		return true, nil
	case "false", "0", "no", "off", "disable", "disabled":
		return false, nil
	default:
		return false, fmt.Errorf("%w: %q is not a boolean", ErrMalformed, raw)
	}
}

// ParseList accepts either a JSON array of strings or a comma separated
// list. Entries are trimmed and blank entries dropped; a list that ends up
// empty is malformed.
func ParseList(raw string) ([]string, error) {
	raw = strings.TrimSpace(raw)

	var items []string
	if strings.HasPrefix(raw, "[") {
		if err := json.Unmarshal([]byte(raw), &items); err != nil {
			return nil, fmt.Errorf("%w: invalid JSON array: %v", ErrMalformed, err)
		}
	} else {
		items = strings.Split(raw, ",")
	}

	out := make([]string, 0, len(items))
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: list %q has no entries", ErrMalformed, raw)
	}
	return out, nil
}
