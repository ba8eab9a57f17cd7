package search

import (
	"context"

	"github.com/richinex/cinematic/dispatch"
	"github.com/richinex/cinematic/protocol"
)

// Operation returns the web_search dispatch entry.
func (a *Answerer) Operation() dispatch.Operation {
	return dispatch.Operation{
		Name:        "web_search",
		Description: "Searches the web and answers the question, for facts not on the media server such as release dates or cast.",
		Class:       protocol.ClassReturn,
		Params: []dispatch.Param{
			{Name: "query"},
		},
		Call: func(ctx context.Context, req dispatch.Request) (string, error) {
			return a.Answer(ctx, req.Arg(0))
		},
	}
}
