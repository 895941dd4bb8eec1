package main

import (
	"net/http"
	"os"
	"time"

	sflib "github.com/k-capehart/go-salesforce/v3"
	"github.com/rotisserie/eris"
	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/sells-group/company-research/internal/cache"
	"github.com/sells-group/company-research/internal/cost"
	"github.com/sells-group/company-research/internal/llm"
	"github.com/sells-group/company-research/internal/pipeline"
	"github.com/sells-group/company-research/internal/scrape"
	"github.com/sells-group/company-research/internal/search"
	anthropicpkg "github.com/sells-group/company-research/pkg/anthropic"
	"github.com/sells-group/company-research/pkg/apollo"
	"github.com/sells-group/company-research/pkg/ddg"
	"github.com/sells-group/company-research/pkg/firecrawl"
	"github.com/sells-group/company-research/pkg/jina"
	sfpkg "github.com/sells-group/company-research/pkg/salesforce"
)

// researchEnv holds the initialized clients and pipeline shared by the
// run/batch/people/serve commands.
type researchEnv struct {
	Pipeline *pipeline.Pipeline
	Store    *cache.Store
	Tracker  *cost.Tracker
}

// Close releases resources held by the environment.
func (re *researchEnv) Close() {
	if re.Store != nil {
		_ = re.Store.Close()
	}
}

// initPipeline builds every provider client the configuration enables and
// wires the pipeline. Optional providers (Firecrawl, Jina, Salesforce, Apollo,
// the cache) degrade to nil with a log line instead of failing startup.
// Callers should defer env.Close().
func initPipeline(events chan<- pipeline.Event, forceRefresh bool) (*researchEnv, error) {
	if err := cfg.Validate("research"); err != nil {
		return nil, err
	}

	store, err := cache.Open(cfg.Cache)
	if err != nil {
		zap.L().Warn("cache unavailable, running without it", zap.Error(err))
		store = nil
	}

	state := llm.NewProviderState()

	var fcClient firecrawl.Client
	if cfg.Firecrawl.Key != "" {
		fcClient = firecrawl.NewClient(cfg.Firecrawl.Key, firecrawl.WithBaseURL(cfg.Firecrawl.BaseURL))
	} else {
		zap.L().Info("RESEARCH_FIRECRAWL_KEY not set, using free search only")
	}
	ddgClient := ddg.NewClient(
		ddg.WithBaseURL(cfg.DuckDuckGo.BaseURL),
		ddg.WithMinInterval(time.Duration(cfg.DuckDuckGo.MinIntervalSecs*float64(time.Second))),
	)
	searcher := search.NewSearcher(fcClient, ddgClient, store, state)

	var overrides *search.Overrides
	if cfg.Cache.DomainScoreFile != "" {
		overrides, err = search.LoadOverrides(cfg.Cache.DomainScoreFile)
		if err != nil {
			zap.L().Warn("domain score overrides not loaded", zap.Error(err))
		}
	}
	ranker := search.NewRanker(overrides)

	var jinaClient jina.Client
	if cfg.Jina.Key != "" {
		jinaClient = jina.NewClient(cfg.Jina.Key, jina.WithBaseURL(cfg.Jina.BaseURL))
	}
	fetcher := scrape.NewFetcher(time.Duration(cfg.Scrape.TimeoutSecs) * time.Second)
	extractor := scrape.NewExtractor(fetcher, jinaClient, store, cfg.Scrape)

	tracker := cost.NewTracker(cost.NewCalculator(cost.FromConfig(cfg.Pricing)))
	extractor.SetCosts(tracker)

	var primary, secondary llm.Client
	if cfg.Anthropic.Key != "" {
		primary = llm.NewAnthropicProvider(anthropicpkg.NewClient(cfg.Anthropic.Key), cfg.Anthropic.Model, cfg.Anthropic.MaxTokens)
	}
	var oaClient *openai.Client
	if cfg.OpenAI.Key != "" {
		oaCfg := openai.DefaultConfig(cfg.OpenAI.Key)
		if cfg.OpenAI.BaseURL != "" {
			oaCfg.BaseURL = cfg.OpenAI.BaseURL
		}
		if cfg.OpenAI.TimeoutSecs > 0 {
			oaCfg.HTTPClient = &http.Client{Timeout: time.Duration(cfg.OpenAI.TimeoutSecs) * time.Second}
		}
		oaClient = openai.NewClientWithConfig(oaCfg)
		secondary = llm.NewOpenAIProvider(oaClient, cfg.OpenAI.Model, cfg.OpenAI.MaxTokens)
	}
	router := llm.NewRouter(primary, secondary, state, time.Duration(cfg.Anthropic.TimeoutSecs)*time.Second)

	var batch pipeline.BatchRunner
	if oaClient != nil {
		batch = llm.NewBatchClient(oaClient, cfg.OpenAI.Model,
			llm.WithMaxTokens(cfg.OpenAI.MaxTokens),
			llm.WithPollInterval(time.Duration(cfg.Batch.PollIntervalSecs)*time.Second),
			llm.WithBatchTimeout(time.Duration(cfg.Batch.TimeoutSecs)*time.Second),
		)
	}

	var crm pipeline.CRMLookup
	if cfg.Salesforce.ClientID != "" {
		sfClient, err := initSalesforce()
		if err != nil {
			zap.L().Warn("salesforce unavailable, skipping CRM enrichment", zap.Error(err))
		} else {
			crm = sfpkg.NewCRM(sfClient)
		}
	} else {
		zap.L().Debug("RESEARCH_SALESFORCE_CLIENT_ID not set, CRM enrichment disabled")
	}

	var apolloClient apollo.Client
	if cfg.Apollo.Key != "" {
		apolloClient = apollo.NewClient(cfg.Apollo.Key, apollo.WithBaseURL(cfg.Apollo.BaseURL))
	}

	var opts []pipeline.Option
	if forceRefresh {
		opts = append(opts, pipeline.WithForceRefresh())
	}
	p := pipeline.New(cfg, pipeline.Deps{
		Searcher:  searcher,
		Ranker:    ranker,
		Extractor: extractor,
		LLM:       router,
		Batch:     batch,
		CRM:       crm,
		Apollo:    apolloClient,
		Store:     store,
		State:     state,
		Tracker:   tracker,
		Events:    events,
	}, opts...)

	return &researchEnv{Pipeline: p, Store: store, Tracker: tracker}, nil
}

func initSalesforce() (sfpkg.Client, error) {
	pemData, err := os.ReadFile(cfg.Salesforce.KeyPath)
	if err != nil {
		return nil, eris.Wrap(err, "read salesforce JWT private key")
	}

	sf, err := sflib.Init(sflib.Creds{
		Domain:         cfg.Salesforce.LoginURL,
		Username:       cfg.Salesforce.Username,
		ConsumerKey:    cfg.Salesforce.ClientID,
		ConsumerRSAPem: string(pemData),
	})
	if err != nil {
		return nil, eris.Wrap(err, "init salesforce")
	}

	return sfpkg.NewClient(sf), nil
}
