package gate

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/cuemby/aof/pkg/types"
)

// when predicates are small boolean expressions over the task's routing and
// tags. Supported terms, combinable with && and negatable with !:
//
//	tags.includes('security')
//	role == 'reviewer'
//	team == 'alpha'
//	agent == 'a1'
var (
	tagsTermRe  = regexp.MustCompile(`^tags\.includes\('([^']*)'\)$`)
	fieldTermRe = regexp.MustCompile(`^(agent|role|team) == '([^']*)'$`)
)

// EvalWhen evaluates a when predicate against the task. An unparseable
// predicate is an error, never a silent false.
func EvalWhen(expr string, t *types.Task) (bool, error) {
	for _, raw := range strings.Split(expr, "&&") {
		term := strings.TrimSpace(raw)
		negate := false
		for strings.HasPrefix(term, "!") {
			negate = !negate
			term = strings.TrimSpace(term[1:])
		}
		val, err := evalTerm(term, t)
		if err != nil {
			return false, err
		}
		if negate {
			val = !val
		}
		if !val {
			return false, nil
		}
	}
	return true, nil
}

func evalTerm(term string, t *types.Task) (bool, error) {
	if m := tagsTermRe.FindStringSubmatch(term); m != nil {
		return t.Routing.HasTag(m[1]), nil
	}
	if m := fieldTermRe.FindStringSubmatch(term); m != nil {
		var got string
		if t.Routing != nil {
			switch m[1] {
			case "agent":
				got = t.Routing.Agent
			case "role":
				got = t.Routing.Role
			case "team":
				got = t.Routing.Team
			}
		}
		return got == m[2], nil
	}
	return false, fmt.Errorf("unsupported when term %q", term)
}
