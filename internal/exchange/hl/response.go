package hl

import "strconv"

// OrderIDFromResponse digs the oid out of an exchange action response
// without assuming the exact nesting, which has shifted between API
// revisions.
func OrderIDFromResponse(resp map[string]any) string {
	if resp == nil {
		return ""
	}
	return orderIDFromAny(resp)
}

func orderIDFromAny(v any) string {
	switch val := v.(type) {
	case map[string]any:
		for _, key := range []string{"orderId", "orderID", "oid", "id"} {
			if id := idFromAny(val[key]); id != "" {
				return id
			}
		}
		for _, nested := range val {
			if id := orderIDFromAny(nested); id != "" {
				return id
			}
		}
	case []any:
		for _, nested := range val {
			if id := orderIDFromAny(nested); id != "" {
				return id
			}
		}
	}
	return ""
}

func idFromAny(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatInt(int64(val), 10)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	default:
		return ""
	}
}

// ResponseError returns the first error string embedded in an exchange
// action response. Rejections come back inside the statuses array with
// HTTP 200, never as a transport failure.
func ResponseError(resp map[string]any) string {
	return errorFromAny(resp)
}

func errorFromAny(v any) string {
	switch val := v.(type) {
	case map[string]any:
		if msg, ok := val["error"].(string); ok && msg != "" {
			return msg
		}
		for _, nested := range val {
			if msg := errorFromAny(nested); msg != "" {
				return msg
			}
		}
	case []any:
		for _, nested := range val {
			if msg := errorFromAny(nested); msg != "" {
				return msg
			}
		}
	}
	return ""
}
