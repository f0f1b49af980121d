package magiccode_test

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/MrEthical07/magiccode"
)

// ExampleNew demonstrates engine construction and a full issue/verify round trip.
func ExampleNew() {
	var sent int
	cfg := magiccode.DefaultConfig()
	cfg.Secret = "example-secret-0123456789"

	engine, err := magiccode.New().
		WithConfig(cfg).
		WithSender(func(_ context.Context, _ magiccode.Record, code int, _ magiccode.Options) error {
			sent = code
			return nil
		}).
		WithVerifier(func(_ context.Context, user magiccode.Record, _ magiccode.Options) (any, error) {
			return user["email"], nil
		}).
		Build()
	if err != nil {
		fmt.Println(err)
		return
	}
	defer engine.Close()

	ctx := context.Background()
	issued, _ := engine.Issue(ctx, magiccode.Record{"email": "alice@example.com"}, magiccode.Options{Action: magiccode.ActionLogin})
	fmt.Println(issued.Outcome, issued.Message())

	input := []magiccode.Source{{"code": strconv.Itoa(sent), "email": "alice@example.com"}}
	verified, _ := engine.Verify(ctx, input, magiccode.Options{})
	fmt.Println(verified.Outcome, verified.Principal)

	_, err = engine.Verify(ctx, input, magiccode.Options{})
	fmt.Println(errors.Is(err, magiccode.ErrInvalidCode), magiccode.StatusOf(err))

	// Output:
	// pass Magic code sent.
	// success alice@example.com
	// true 400
}

// ExampleEngine_Authenticate shows dispatch from a transport-neutral request.
func ExampleEngine_Authenticate() {
	var engine *magiccode.Engine
	_, err := engine.Authenticate(context.Background(), magiccode.Request{
		Options: magiccode.Options{Action: magiccode.ActionRegister},
		Body:    magiccode.Source{"email": "bob@example.com", "name": "Bob"},
	})
	if err != nil {
		_ = magiccode.KindOf(err)
	}
}

// ExampleEngine_MetricsSnapshot shows how to read in-process metrics counters.
func ExampleEngine_MetricsSnapshot() {
	var engine *magiccode.Engine
	snapshot := engine.MetricsSnapshot()
	_ = snapshot.Counters[magiccode.MetricVerifySuccess]
}
