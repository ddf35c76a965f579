package cmdpolicy_test

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/zhangyunhao116/cmdpolicy"
)

func ExampleDecide() {
	for _, cmd := range []string{"kubectl get pods", "rm file.txt", "rm -rf /tmp/cache"} {
		fmt.Printf("%s: %s\n", cmd, cmdpolicy.Decide(cmd))
	}
	// Output:
	// kubectl get pods: auto
	// rm file.txt: manual
	// rm -rf /tmp/cache: blocked
}

func ExampleExplain() {
	reason, blocked := cmdpolicy.Explain("echo hello > /etc/passwd")
	fmt.Println(blocked, reason)
	// Output: true sensitive redirect target
}

func ExampleClassify() {
	v := cmdpolicy.Classify("$(echo rm) -rf /")
	fmt.Println(v.Kind, v.Rule, v.Reason)
	// Output: blocked expansion dynamic/expanded content
}

func ExampleNewEngine() {
	p := cmdpolicy.DefaultPolicy()
	p.Allowlist = append(p.Allowlist, "make test")
	p.AlwaysDeny = append(p.AlwaysDeny, "terraform")

	e, err := cmdpolicy.NewEngine(p)
	if err != nil {
		fmt.Println(err)
		return
	}
	fmt.Println(e.Decide("make test"))
	fmt.Println(e.Classify("terraform destroy"))
	// Output:
	// auto
	// blocked: terraform is always denied
}

func ExampleGate_Authorize() {
	gate := cmdpolicy.NewGate(nil, cmdpolicy.GateConfig{
		Logger: slog.New(slog.DiscardHandler),
		ApprovalCallback: func(_ context.Context, req cmdpolicy.ApprovalRequest) (cmdpolicy.ApprovalDecision, error) {
			return cmdpolicy.Approve, nil
		},
	})
	defer gate.Close()

	ticket, _ := gate.Authorize(context.Background(), "go build ./...")
	fmt.Println(ticket.Assessment.Decision, ticket.Approval, ticket.Persistable())

	_, err := gate.Authorize(context.Background(), "git push --force")
	fmt.Println(errors.Is(err, cmdpolicy.ErrBlockedCommand))
	// Output:
	// manual approve true
	// true
}
