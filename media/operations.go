package media

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/richinex/cinematic/dispatch"
	"github.com/richinex/cinematic/protocol"
)

// Operations returns the dispatch table entries for this service, named
// after the kind: movie_lookup, movie_post, movie_put, movie_delete.
func (s *Service) Operations() []dispatch.Operation {
	kind := string(s.client.kind)
	idKey := s.client.kind.IDKey()
	plural := "movies"
	if s.client.kind == KindSeries {
		plural = "series"
	}

	return []dispatch.Operation{
		{
			Name: kind + "_lookup",
			Description: fmt.Sprintf("Looks up %s on the server and in the metadata source, "+
				"answering the query about them (availability, %s, id, quality, file size).", plural, idKey),
			Class: protocol.ClassReturn,
			Params: []dispatch.Param{
				{Name: "term", Description: "title to search for, e.g. Stargate"},
				{Name: "query", Description: "what to find out about the matches"},
			},
			FanOut: true,
			Call: func(ctx context.Context, req dispatch.Request) (string, error) {
				return s.Lookup(ctx, req.Arg(0), req.Arg(1))
			},
		},
		{
			Name: kind + "_post",
			Description: fmt.Sprintf("Adds a %s to the server by %s. Quality profile ids: "+
				"2 SD, 3 720p, 4 1080p, 5 2160p, 6 720p/1080p, 7 Any. Defaults to 4.", kind, idKey),
			Class: protocol.ClassImmediate,
			Params: []dispatch.Param{
				{Name: idKey},
				{Name: "qualityProfileId"},
			},
			Call: func(ctx context.Context, req dispatch.Request) (string, error) {
				id, err := parseID(idKey, req.Arg(0))
				if err != nil {
					return "", err
				}
				profile := int64(4)
				if strings.TrimSpace(req.Arg(1)) != "" {
					if profile, err = parseID("qualityProfileId", req.Arg(1)); err != nil {
						return "", err
					}
				}
				if err := s.client.Add(ctx, id, profile); err != nil {
					return "", err
				}
				return fmt.Sprintf("%s %s %d added", kind, idKey, id), nil
			},
		},
		{
			Name: kind + "_put",
			Description: fmt.Sprintf("Updates a %s already on the server. The argument is a JSON "+
				"object holding the server id and the fields to change, e.g. "+
				"{\"id\":5,\"qualityProfileId\":5}.", kind),
			Class: protocol.ClassImmediate,
			Params: []dispatch.Param{
				{Name: "fields"},
			},
			Call: func(ctx context.Context, req dispatch.Request) (string, error) {
				if err := s.client.Update(ctx, req.Arg(0)); err != nil {
					return "", err
				}
				return kind + " updated", nil
			},
		},
		{
			Name:        kind + "_delete",
			Description: fmt.Sprintf("Deletes a %s and its files from the server by server id.", kind),
			Class:       protocol.ClassImmediate,
			Params: []dispatch.Param{
				{Name: "id"},
			},
			AdminOnly: true,
			Call: func(ctx context.Context, req dispatch.Request) (string, error) {
				id, err := parseID("id", req.Arg(0))
				if err != nil {
					return "", err
				}
				if err := s.client.Delete(ctx, id); err != nil {
					return "", err
				}
				return fmt.Sprintf("%s %d deleted", kind, id), nil
			},
		},
	}
}

func parseID(name, raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q", name, raw)
	}
	return id, nil
}
