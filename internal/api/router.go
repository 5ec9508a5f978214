package api

import (
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/gaspardpetit/voicerelay/internal/config"
	"github.com/gaspardpetit/voicerelay/internal/drain"
	"github.com/gaspardpetit/voicerelay/internal/tts"
)

// Options wires the upstream collaborators into the API router.
type Options struct {
	Generator       Generator
	Models          ModelLister
	Speech          tts.Synthesizer
	GenerateTimeout time.Duration
	ModelsTimeout   time.Duration
	// Drain, when set, turns away new requests once shutdown starts.
	Drain *drain.Gate
}

func (o *Options) setDefaults() {
	if o.GenerateTimeout <= 0 {
		o.GenerateTimeout = config.DefaultGenerateTimeout
	}
	if o.ModelsTimeout <= 0 {
		o.ModelsTimeout = config.DefaultModelsTimeout
	}
	if o.Speech == nil {
		o.Speech = tts.Unavailable{Engine: "gtts"}
	}
}

// NewRouter builds the API router.
func NewRouter(o Options) chi.Router {
	o.setDefaults()
	r := chi.NewRouter()
	if o.Drain != nil {
		r.Use(o.Drain.Middleware)
	}
	r.Post("/generate", GenerateHandler(o.Generator, o.GenerateTimeout))
	r.Get("/models", ModelsHandler(o.Models, o.ModelsTimeout))
	speech := TTSHandler(o.Speech)
	r.Get("/tts", speech)
	r.Post("/tts", speech)
	r.Options("/tts", speech)
	r.Get("/tts/test", TTSTestHandler(o.Speech))
	return r
}
