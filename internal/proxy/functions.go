package proxy

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/marba/synapse/internal/vendor"
)

// Vendor capabilities each proxy needs; the vendor package clients satisfy them.
type (
	WeatherAPI interface {
		Current(ctx context.Context, location string) (json.RawMessage, error)
		Forecast(ctx context.Context, location string) (json.RawMessage, error)
	}

	NewsAPI interface {
		News(ctx context.Context, query string, num int) ([]vendor.NewsArticle, error)
	}

	SearchAPI interface {
		Search(ctx context.Context, query string, num int) ([]vendor.SearchResult, error)
		Places(ctx context.Context, query, location string) ([]vendor.Place, error)
	}

	SEOAPI interface {
		DomainOverview(ctx context.Context, domain, database string) ([]vendor.Record, error)
		OrganicKeywords(ctx context.Context, domain, database string, limit int) ([]vendor.Record, error)
		Backlinks(ctx context.Context, domain string) ([]vendor.Record, error)
	}

	SocialAPI interface {
		Trending(ctx context.Context, topic string, days int) ([]json.RawMessage, error)
		TopContent(ctx context.Context, query string, days int) ([]vendor.SocialArticle, error)
	}
)

type locationParams struct {
	Location string `json:"location" validate:"required"`
}

// NewWeather proxies OpenWeather current conditions and forecasts.
func NewWeather(api WeatherAPI, opts ...Option) *Proxy {
	fetch := func(get func(context.Context, string) (json.RawMessage, error)) func(context.Context, locationParams) (*Result, error) {
		return func(ctx context.Context, p locationParams) (*Result, error) {
			data, err := get(ctx, p.Location)
			if err != nil {
				return nil, err
			}
			return &Result{Key: "data", Payload: data, Echo: map[string]any{"location": p.Location}}, nil
		}
	}

	return New("Weather", []Action{
		NewAction("current", fetch(api.Current)),
		NewAction("forecast", fetch(api.Forecast)),
	}, opts...)
}

type newsSearchParams struct {
	Query string `json:"query" validate:"required"`
	Num   int    `json:"num" validate:"gte=0,lte=100"`
}

type newsLocalParams struct {
	Location string `json:"location" validate:"required"`
	Query    string `json:"query"`
	Num      int    `json:"num" validate:"gte=0,lte=100"`
}

type newsIndustryParams struct {
	Industry string `json:"industry" validate:"required"`
	Num      int    `json:"num" validate:"gte=0,lte=100"`
}

// NewNews proxies Serper news searches.
func NewNews(api NewsAPI, opts ...Option) *Proxy {
	articles := func(ctx context.Context, q string, num int, echo map[string]any) (*Result, error) {
		found, err := api.News(ctx, q, num)
		if err != nil {
			return nil, err
		}
		return &Result{Key: "articles", Payload: found, Echo: echo}, nil
	}

	return New("News", []Action{
		NewAction("search", func(ctx context.Context, p newsSearchParams) (*Result, error) {
			return articles(ctx, p.Query, p.Num, map[string]any{"query": p.Query})
		}),
		NewAction("local", func(ctx context.Context, p newsLocalParams) (*Result, error) {
			q := strings.TrimSpace(p.Query + " " + p.Location)
			return articles(ctx, q, p.Num, map[string]any{"location": p.Location})
		}),
		NewAction("industry", func(ctx context.Context, p newsIndustryParams) (*Result, error) {
			return articles(ctx, p.Industry+" industry news", p.Num, map[string]any{"industry": p.Industry})
		}),
	}, opts...)
}

type webSearchParams struct {
	Query string `json:"query" validate:"required"`
	Num   int    `json:"num" validate:"gte=0,lte=100"`
}

type placesParams struct {
	Query    string `json:"query" validate:"required"`
	Location string `json:"location" validate:"required"`
}

// NewSearch proxies Serper web and places searches.
func NewSearch(api SearchAPI, opts ...Option) *Proxy {
	return New("Search", []Action{
		NewAction("search", func(ctx context.Context, p webSearchParams) (*Result, error) {
			results, err := api.Search(ctx, p.Query, p.Num)
			if err != nil {
				return nil, err
			}
			return &Result{Key: "results", Payload: results, Echo: map[string]any{"query": p.Query}}, nil
		}),
		NewAction("places", func(ctx context.Context, p placesParams) (*Result, error) {
			results, err := api.Places(ctx, p.Query, p.Location)
			if err != nil {
				return nil, err
			}
			return &Result{Key: "results", Payload: results, Echo: map[string]any{"query": p.Query, "location": p.Location}}, nil
		}),
	}, opts...)
}

type domainParams struct {
	Domain   string `json:"domain" validate:"required"`
	Database string `json:"database" validate:"omitempty,len=2"`
}

type keywordsParams struct {
	Domain   string `json:"domain" validate:"required"`
	Database string `json:"database" validate:"omitempty,len=2"`
	Limit    int    `json:"limit" validate:"gte=0,lte=1000"`
}

// NewSEO proxies Semrush domain reports. Single-row reports are unwrapped.
func NewSEO(api SEOAPI, opts ...Option) *Proxy {
	echo := func(domain string) map[string]any { return map[string]any{"domain": domain} }

	return New("SEO", []Action{
		NewAction("domain_overview", func(ctx context.Context, p domainParams) (*Result, error) {
			recs, err := api.DomainOverview(ctx, p.Domain, p.Database)
			if err != nil {
				return nil, err
			}
			return &Result{Key: "data", Payload: first(recs), Echo: echo(p.Domain)}, nil
		}),
		NewAction("organic_keywords", func(ctx context.Context, p keywordsParams) (*Result, error) {
			recs, err := api.OrganicKeywords(ctx, p.Domain, p.Database, p.Limit)
			if err != nil {
				return nil, err
			}
			return &Result{Key: "data", Payload: recs, Echo: echo(p.Domain)}, nil
		}),
		NewAction("backlinks", func(ctx context.Context, p domainParams) (*Result, error) {
			recs, err := api.Backlinks(ctx, p.Domain)
			if err != nil {
				return nil, err
			}
			return &Result{Key: "data", Payload: first(recs), Echo: echo(p.Domain)}, nil
		}),
	}, opts...)
}

func first(recs []vendor.Record) vendor.Record {
	if len(recs) == 0 {
		return vendor.Record{}
	}
	return recs[0]
}

type trendingParams struct {
	Topic string `json:"topic" validate:"required"`
	Days  int    `json:"days" validate:"gte=0,lte=365"`
}

type topContentParams struct {
	Query string `json:"query" validate:"required"`
	Days  int    `json:"days" validate:"gte=0,lte=365"`
}

// NewSocial proxies BuzzSumo trend and top content lookups.
func NewSocial(api SocialAPI, opts ...Option) *Proxy {
	return New("Social", []Action{
		NewAction("trending", func(ctx context.Context, p trendingParams) (*Result, error) {
			data, err := api.Trending(ctx, p.Topic, p.Days)
			if err != nil {
				return nil, err
			}
			return &Result{Key: "data", Payload: data, Echo: map[string]any{"topic": p.Topic}}, nil
		}),
		NewAction("top_content", func(ctx context.Context, p topContentParams) (*Result, error) {
			data, err := api.TopContent(ctx, p.Query, p.Days)
			if err != nil {
				return nil, err
			}
			return &Result{Key: "data", Payload: data, Echo: map[string]any{"query": p.Query}}, nil
		}),
	}, opts...)
}

// Set groups the five vendor proxies.
type Set struct {
	Weather *Proxy
	News    *Proxy
	Search  *Proxy
	SEO     *Proxy
	Social  *Proxy
}

// Register mounts every proxy under router as /<name> with POST and OPTIONS.
func (s *Set) Register(router fiber.Router) {
	for name, p := range map[string]*Proxy{
		"weather": s.Weather,
		"news":    s.News,
		"search":  s.Search,
		"seo":     s.SEO,
		"social":  s.Social,
	} {
		if p == nil {
			continue
		}
		router.Post("/"+name, p.Handle)
		router.Options("/"+name, p.Options)
	}
}
