package dispatcher

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"strconv"
	"strings"

	"github.com/georgeshao/fleetctx/internal/catalog"
	"github.com/georgeshao/fleetctx/internal/config"
	"github.com/georgeshao/fleetctx/pkg/types"
)

// cacheScope names the results this dispatcher can produce: the same
// arguments yield different results under another catalog or policy, so
// those must never share cache entries.
func cacheScope(reg *catalog.Registry, policy config.Policy) string {
	h := fnv.New64a()
	fmt.Fprintf(h, "%p|", reg)
	if enc, err := json.Marshal(policy); err == nil {
		h.Write(enc)
	}
	return strconv.FormatUint(h.Sum64(), 16)
}

// numbered gives every invocation an id so its observation can be tied back
// to it. Ids supplied by the planner are kept.
func numbered(step int, invocations []types.Invocation) []types.Invocation {
	out := make([]types.Invocation, len(invocations))
	for i, inv := range invocations {
		if inv.ID == "" {
			inv.ID = fmt.Sprintf("call_%d_%d", step, i+1)
		}
		out[i] = inv
	}
	return out
}

func appendUnique(list []string, name string) []string {
	for _, existing := range list {
		if existing == name {
			return list
		}
	}
	return append(list, name)
}

func hardStopAnswer(maxSteps int, toolsUsed []string, unexecuted []types.Invocation) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Hard stop: reached the limit of %d planning steps without a final answer.", maxSteps)

	if len(toolsUsed) > 0 {
		fmt.Fprintf(&b, " Tools used: %s.", strings.Join(toolsUsed, ", "))
	} else {
		b.WriteString(" No tools were executed.")
	}

	if len(unexecuted) > 0 {
		calls := make([]string, 0, len(unexecuted))
		for _, inv := range unexecuted {
			args := string(inv.Args)
			if args == "" {
				args = "{}"
			}
			calls = append(calls, fmt.Sprintf("%s(%s)", inv.Name, args))
		}
		fmt.Fprintf(&b, " Unexecuted calls: %s.", strings.Join(calls, "; "))
	}
	return b.String()
}
