// Package decision holds the comparison and gating rules of decision nodes.
package decision

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/dukex/flowstate/pkg/models"
)

const (
	ConditionEquals    = "equals"
	ConditionNotEquals = "notEquals"
)

// ErrUnsupportedCondition is returned for condition types the engine does not evaluate.
var ErrUnsupportedCondition = errors.New("unsupported condition type")

// Evaluate applies the condition type to the input value.
func Evaluate(conditionType string, input, condition any) (bool, error) {
	switch conditionType {
	case "", ConditionEquals:
		return LooseEqual(input, condition), nil
	case ConditionNotEquals:
		return !LooseEqual(input, condition), nil
	default:
		return false, fmt.Errorf("%w: %q", ErrUnsupportedCondition, conditionType)
	}
}

// LooseEqual compares two scalars after normalising strings, numbers and
// booleans, so "5" equals 5 and "true" equals true.
func LooseEqual(left, right any) bool {
	if left == nil || right == nil {
		return left == nil && right == nil
	}

	leftBool, leftIsBool := left.(bool)
	rightBool, rightIsBool := right.(bool)

	switch {
	case leftIsBool && rightIsBool:
		return leftBool == rightBool
	case leftIsBool:
		value, ok := asBool(right)

		return ok && value == leftBool
	case rightIsBool:
		value, ok := asBool(left)

		return ok && value == rightBool
	}

	leftNumber, leftIsNumber := number(left)
	rightNumber, rightIsNumber := number(right)

	if leftIsNumber || rightIsNumber {
		if !leftIsNumber {
			leftNumber, leftIsNumber = parseNumber(left)
		}

		if !rightIsNumber {
			rightNumber, rightIsNumber = parseNumber(right)
		}

		return leftIsNumber && rightIsNumber && leftNumber == rightNumber
	}

	return fmt.Sprint(left) == fmt.Sprint(right)
}

// Blocked reports whether a decision with the given outcome must wait for the
// join feeding it. An unfinished AND holds back a true outcome; an unfinished
// OR holds back a false one.
func Blocked(outcome bool, upstream *models.NodeContext) bool {
	if outcome {
		return upstream.GatedByJoin(models.JoinTypeAnd)
	}

	return upstream.GatedByJoin(models.JoinTypeOr)
}

// Branches returns the connections labelled with the given outcome.
func Branches(connections []*models.Connection, outcome bool) []*models.Connection {
	selected := make([]*models.Connection, 0, len(connections))

	for _, connection := range connections {
		value, ok := connection.Data.Branch()
		if ok && value == outcome {
			selected = append(selected, connection)
		}
	}

	return selected
}

func asBool(value any) (bool, bool) {
	switch v := value.(type) {
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(v))

		return parsed, err == nil
	default:
		n, ok := number(value)
		if !ok || (n != 0 && n != 1) {
			return false, false
		}

		return n == 1, true
	}
}

func number(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int8:
		return float64(v), true
	case int16:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint8:
		return float64(v), true
	case uint16:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()

		return f, err == nil
	default:
		return 0, false
	}
}

func parseNumber(value any) (float64, bool) {
	s, ok := value.(string)
	if !ok {
		return 0, false
	}

	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)

	return f, err == nil
}
