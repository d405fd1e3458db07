package filter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"

	chromem "github.com/philippgille/chromem-go"

	"github.com/lexgate/lexgate/pkg/httputil"
)

// advicePhrase is one seeded example of prescriptive legal phrasing.
type advicePhrase struct {
	Text     string
	Category string
	Severity float32
}

// SemanticDetector catches paraphrased advice the regex layer misses by
// comparing response text against seeded advice phrasings in an embedded
// vector store. It is an escalation-only layer: a hit can raise a
// borderline response to attorney review, never lower one.
type SemanticDetector struct {
	db         *chromem.DB
	collection *chromem.Collection
	threshold  float32
	mu         sync.RWMutex
	ready      bool
}

// SemanticResult is the outcome of one similarity query.
type SemanticResult struct {
	Score       float32 `json:"score"`
	Category    string  `json:"category"`
	MatchedText string  `json:"matched_text"`
	IsAdvice    bool    `json:"is_advice"`
}

// newOllamaEmbeddingFunc builds an embedding function against Ollama's
// /api/embeddings endpoint.
func newOllamaEmbeddingFunc(model, baseURL string) chromem.EmbeddingFunc {
	client := httputil.Client(httputil.TierSlow)

	return func(ctx context.Context, text string) ([]float32, error) {
		reqBody, err := json.Marshal(map[string]string{
			"model":  model,
			"prompt": text,
		})
		if err != nil {
			return nil, fmt.Errorf("marshal embedding request: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/api/embeddings", bytes.NewReader(reqBody))
		if err != nil {
			return nil, fmt.Errorf("build embedding request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("embedding request: %w", err)
		}
		defer httputil.DrainAndClose(resp.Body)

		if err := httputil.CheckResponse(resp, "ollama embedding"); err != nil {
			return nil, err
		}

		var result struct {
			Embedding []float32 `json:"embedding"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			return nil, fmt.Errorf("decode embedding response: %w", err)
		}
		return result.Embedding, nil
	}
}

// NewSemanticDetector creates a detector backed by Ollama embeddings.
// Call SeedPhrases before Detect.
func NewSemanticDetector(ollamaURL string) (*SemanticDetector, error) {
	db := chromem.NewDB()

	collection, err := db.CreateCollection("advice_phrases", nil, newOllamaEmbeddingFunc("embeddinggemma", ollamaURL))
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}

	return &SemanticDetector{
		db:         db,
		collection: collection,
		threshold:  0.70,
	}, nil
}

// NewOptionalSemanticDetector returns nil, with a log line, when the
// detector cannot be built. The pipeline treats a nil detector as "layer
// absent" and keeps running on regex alone.
func NewOptionalSemanticDetector(ctx context.Context, ollamaURL string) *SemanticDetector {
	if ollamaURL == "" {
		log.Printf("[STARTUP] Semantic advice detector disabled - no embedding endpoint configured")
		return nil
	}
	sd, err := NewSemanticDetector(ollamaURL)
	if err != nil {
		log.Printf("[WARN] Semantic advice detector unavailable: %v", err)
		return nil
	}
	if err := sd.SeedPhrases(ctx); err != nil {
		log.Printf("[WARN] Semantic advice detector seeding failed: %v", err)
		return nil
	}
	log.Printf("[STARTUP] Semantic advice detector ready (%d seed phrases)", len(seedAdvicePhrases()))
	return sd
}

// SeedPhrases loads the advice phrase corpus into the vector store.
// Documents are added with one worker so the embedding backend is not
// flooded at startup.
func (sd *SemanticDetector) SeedPhrases(ctx context.Context) error {
	sd.mu.Lock()
	defer sd.mu.Unlock()

	phrases := seedAdvicePhrases()
	docs := make([]chromem.Document, len(phrases))
	for i, p := range phrases {
		docs[i] = chromem.Document{
			ID:      fmt.Sprintf("phrase_%d", i),
			Content: p.Text,
			Metadata: map[string]string{
				"category": p.Category,
				"severity": fmt.Sprintf("%.2f", p.Severity),
			},
		}
	}
	if err := sd.collection.AddDocuments(ctx, docs, 1); err != nil {
		return fmt.Errorf("seed advice phrases: %w", err)
	}
	sd.ready = true
	return nil
}

// Detect queries the store for the closest advice phrasing.
func (sd *SemanticDetector) Detect(ctx context.Context, text string) (*SemanticResult, error) {
	sd.mu.RLock()
	defer sd.mu.RUnlock()

	if !sd.ready {
		return nil, fmt.Errorf("semantic detector not seeded")
	}

	results, err := sd.collection.Query(ctx, strings.ToLower(text), 3, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("similarity query: %w", err)
	}
	if len(results) == 0 {
		return &SemanticResult{Category: "informational"}, nil
	}

	best := results[0]
	category := best.Metadata["category"]
	if category == "informational" && best.Similarity > sd.threshold {
		return &SemanticResult{Category: "informational"}, nil
	}

	return &SemanticResult{
		Score:       best.Similarity,
		Category:    category,
		MatchedText: best.Content,
		IsAdvice:    best.Similarity >= sd.threshold && category != "informational",
	}, nil
}

// IsReady reports whether seeding completed.
func (sd *SemanticDetector) IsReady() bool {
	sd.mu.RLock()
	defer sd.mu.RUnlock()
	return sd.ready
}

var (
	cachedPhrases     []advicePhrase
	cachedPhrasesOnce sync.Once
)

// seedAdvicePhrases returns the curated corpus of prescriptive legal
// phrasings plus informational counter-examples for false positive
// control.
func seedAdvicePhrases() []advicePhrase {
	cachedPhrasesOnce.Do(func() {
		cachedPhrases = []advicePhrase{
			// Direct prescriptive advice
			{"You should file a lawsuit against your landlord", "direct_advice", 1.0},
			{"I recommend that you sue them for breach of contract", "direct_advice", 1.0},
			{"The best thing for you to do is settle this case", "direct_advice", 0.95},
			{"My advice is to reject the settlement offer", "direct_advice", 1.0},
			{"You need to respond to the complaint right away", "direct_advice", 0.9},
			{"Do not sign that agreement under any circumstances", "direct_advice", 0.95},
			{"In your situation I would plead not guilty", "direct_advice", 0.95},
			{"Take them to small claims court", "direct_advice", 0.9},

			// Professional representation phrasing
			{"As your lawyer I can tell you this claim will succeed", "professional_services", 1.0},
			{"I will draft the contract for you", "professional_services", 0.9},
			{"I can represent you in this dispute", "professional_services", 0.95},
			{"Consider me your legal counsel on this matter", "professional_services", 0.95},

			// Deadline and timing directives
			{"You must file before the statute of limitations runs out next month", "timing_critical", 0.95},
			{"Act now or you will lose your right to appeal", "timing_critical", 0.9},
			{"Miss this deadline and your case is over", "timing_critical", 0.9},

			// Entity formation steering
			{"You should form an LLC to protect your assets", "business_formation", 0.95},
			{"Incorporate in Delaware for the tax benefits", "business_formation", 0.9},
			{"Set up a holding company before the acquisition", "business_formation", 0.9},

			// Estate planning steering
			{"Put your house in a living trust right away", "estate_planning", 0.95},
			{"You should disinherit him in your will", "estate_planning", 0.95},
			{"Name your daughter as executor instead", "estate_planning", 0.9},

			// Conditional advice
			{"If they refuse to pay then you should sue", "conditional_advice", 0.9},
			{"Should the landlord enter again, file a complaint immediately", "conditional_advice", 0.9},

			// Informational counter-examples
			{"The statute of limitations for contract claims varies by state", "informational", 0.0},
			{"A living trust is a legal arrangement that holds assets during life", "informational", 0.0},
			{"Small claims courts handle disputes under a monetary threshold", "informational", 0.0},
			{"An LLC is a business structure that limits personal liability", "informational", 0.0},
			{"Tenants generally have a right to habitable housing", "informational", 0.0},
			{"Courts may dismiss complaints that fail to state a claim", "informational", 0.0},
			{"Many jurisdictions allow appeals within thirty days of judgment", "informational", 0.0},
			{"Executors administer an estate under court supervision", "informational", 0.0},
		}
	})
	return cachedPhrases
}
