package awsmock

import (
	"fmt"
	"math/big"
	"regexp"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

func resolve(name string, names map[string]string) string {
	name = strings.TrimSpace(name)
	if strings.HasPrefix(name, "#") {
		if n, ok := names[name]; ok {
			return n
		}
	}
	return name
}

// evalCondition evaluates OR-joined alternatives of AND-joined terms, with
// AND binding tighter. A parenthesised term is evaluated recursively.
func evalCondition(it item, expr string, names map[string]string, values item) bool {
	for _, alt := range splitTop(expr, " OR ") {
		if evalAll(it, alt, names, values) {
			return true
		}
	}
	return false
}

func evalAll(it item, expr string, names map[string]string, values item) bool {
	for _, term := range splitTop(expr, " AND ") {
		term = strings.TrimSpace(term)
		if strings.HasPrefix(term, "(") && strings.HasSuffix(term, ")") {
			if !evalCondition(it, term[1:len(term)-1], names, values) {
				return false
			}
			continue
		}
		if !evalClause(it, term, names, values) {
			return false
		}
	}
	return true
}

func splitTop(expr, sep string) []string {
	var out []string
	depth, last := 0, 0
	for i := 0; i < len(expr); i++ {
		switch expr[i] {
		case '(':
			depth++
		case ')':
			depth--
		}
		if depth == 0 && strings.HasPrefix(expr[i:], sep) {
			out = append(out, expr[last:i])
			last = i + len(sep)
			i += len(sep) - 1
		}
	}
	return append(out, expr[last:])
}

var (
	existsRe    = regexp.MustCompile(`^attribute_exists\((\S+)\)$`)
	notExistsRe = regexp.MustCompile(`^attribute_not_exists\((\S+)\)$`)
	cmpRe       = regexp.MustCompile(`^(\S+) (=|<>|<|<=|>|>=) (:\w+)$`)
)

func evalClause(it item, clause string, names map[string]string, values item) bool {
	if m := existsRe.FindStringSubmatch(clause); m != nil {
		_, ok := it[resolve(m[1], names)]
		return ok
	}
	if m := notExistsRe.FindStringSubmatch(clause); m != nil {
		_, ok := it[resolve(m[1], names)]
		return !ok
	}
	if m := cmpRe.FindStringSubmatch(clause); m != nil {
		cur, ok := it[resolve(m[1], names)]
		want := values[m[3]]
		if m[2] == "<>" {
			return !ok || !equal(cur, want)
		}
		if !ok {
			return false
		}
		c, ok := compare(cur, want)
		if !ok {
			return false
		}
		switch m[2] {
		case "=":
			return c == 0
		case "<":
			return c < 0
		case "<=":
			return c <= 0
		case ">":
			return c > 0
		case ">=":
			return c >= 0
		}
	}
	panic(fmt.Sprintf("awsmock: unsupported condition %q", clause))
}

var ifNotExistsRe = regexp.MustCompile(`^if_not_exists\((\S+), (:\w+)\) \+ (:\w+)$`)

// applyUpdate handles "SET a = :v, b = if_not_exists(b, :z) + :inc" and
// "REMOVE a" clauses.
func applyUpdate(cur, key item, expr string, names map[string]string, values item) (item, error) {
	next := clone(cur)
	if next == nil {
		next = clone(key)
	}
	expr = strings.TrimSpace(expr)
	setPart, removePart := expr, ""
	if i := strings.Index(expr, " REMOVE "); i >= 0 {
		setPart, removePart = expr[:i], expr[i+len(" REMOVE "):]
	} else if strings.HasPrefix(expr, "REMOVE ") {
		setPart, removePart = "", strings.TrimPrefix(expr, "REMOVE ")
	}

	if setPart != "" {
		if !strings.HasPrefix(setPart, "SET ") {
			return nil, fmt.Errorf("awsmock: unsupported update %q", expr)
		}
		for _, a := range splitTop(strings.TrimPrefix(setPart, "SET "), ", ") {
			lhs, rhs, ok := strings.Cut(a, " = ")
			if !ok {
				return nil, fmt.Errorf("awsmock: bad assignment %q", a)
			}
			attr := resolve(lhs, names)
			rhs = strings.TrimSpace(rhs)
			if m := ifNotExistsRe.FindStringSubmatch(rhs); m != nil {
				base := values[m[2]]
				if v, ok := next[resolve(m[1], names)]; ok {
					base = v
				}
				sum, err := add(base, values[m[3]])
				if err != nil {
					return nil, err
				}
				next[attr] = sum
				continue
			}
			v, ok := values[rhs]
			if !ok {
				return nil, fmt.Errorf("awsmock: unknown value %q", rhs)
			}
			next[attr] = v
		}
	}
	for _, a := range strings.Split(removePart, ",") {
		if a = strings.TrimSpace(a); a != "" {
			delete(next, resolve(a, names))
		}
	}
	return next, nil
}

func add(a, b types.AttributeValue) (types.AttributeValue, error) {
	x, ok1 := number(a)
	y, ok2 := number(b)
	if !ok1 || !ok2 {
		return nil, fmt.Errorf("awsmock: non-numeric add")
	}
	return &types.AttributeValueMemberN{Value: new(big.Float).Add(x, y).Text('f', -1)}, nil
}

func number(v types.AttributeValue) (*big.Float, bool) {
	n, ok := v.(*types.AttributeValueMemberN)
	if !ok {
		return nil, false
	}
	f, _, err := big.ParseFloat(n.Value, 10, 128, big.ToNearestEven)
	return f, err == nil
}

func compare(a, b types.AttributeValue) (int, bool) {
	switch x := a.(type) {
	case *types.AttributeValueMemberS:
		y, ok := b.(*types.AttributeValueMemberS)
		if !ok {
			return 0, false
		}
		return strings.Compare(x.Value, y.Value), true
	case *types.AttributeValueMemberN:
		xf, ok1 := number(a)
		yf, ok2 := number(b)
		if !ok1 || !ok2 {
			return 0, false
		}
		return xf.Cmp(yf), true
	case *types.AttributeValueMemberBOOL:
		y, ok := b.(*types.AttributeValueMemberBOOL)
		if !ok || x.Value != y.Value {
			return 1, ok
		}
		return 0, true
	}
	return 0, false
}

func equal(a, b types.AttributeValue) bool {
	c, ok := compare(a, b)
	return ok && c == 0
}

func render(v types.AttributeValue) string {
	switch x := v.(type) {
	case *types.AttributeValueMemberS:
		return x.Value
	case *types.AttributeValueMemberN:
		return x.Value
	}
	return fmt.Sprintf("%v", v)
}

func clone(it item) item {
	if it == nil {
		return nil
	}
	out := make(item, len(it))
	for k, v := range it {
		out[k] = v
	}
	return out
}

func strPtr(s string) *string { return &s }

func derefStr(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
