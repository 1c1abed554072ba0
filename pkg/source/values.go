// pkg/source/values.go
package source

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ToText converts a scanned warehouse value to the text form the normalizer
// expects. Numbers are written with a comma decimal separator, the way the
// delimited exports write them; numeric marks string-typed numbers that need
// the same treatment.
func ToText(value interface{}, numeric bool) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		if numeric {
			return strings.ReplaceAll(v, ".", ",")
		}
		return v
	case []byte:
		if numeric {
			return strings.ReplaceAll(string(v), ".", ",")
		}
		return string(v)
	case bool:
		return strconv.FormatBool(v)
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprintf("%d", v)
	case float32:
		return decimalText(float64(v))
	case float64:
		return decimalText(v)
	case time.Time:
		return v.Format(time.RFC3339)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func decimalText(f float64) string {
	return strings.ReplaceAll(strconv.FormatFloat(f, 'f', -1, 64), ".", ",")
}
