package ocr

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/eventhint/eventhint/pkg/logging"
)

const (
	visionEndpoint    = "https://vision.googleapis.com/v1/images:annotate"
	visionScope       = "https://www.googleapis.com/auth/cloud-platform"
	defaultTokenURI   = "https://oauth2.googleapis.com/token"
	visionDefaultConf = 0.8
)

// GoogleVision calls the Cloud Vision document text detection API.
// Credentials come from a service account key file; the configured
// value is treated as a path to that file.
type GoogleVision struct {
	keyFile  string
	endpoint string
	client   *http.Client
	log      logging.Logger

	mu          sync.Mutex
	creds       *serviceAccount
	accessToken string
	tokenExpiry time.Time
}

type serviceAccount struct {
	ClientEmail string `json:"client_email"`
	PrivateKey  string `json:"private_key"`
	TokenURI    string `json:"token_uri"`
}

// NewGoogleVision builds the premium OCR provider.
func NewGoogleVision(keyFilePath string, log logging.Logger) (*GoogleVision, error) {
	if keyFilePath == "" {
		return nil, fmt.Errorf("vision api key file path is required")
	}
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &GoogleVision{
		keyFile:  keyFilePath,
		endpoint: visionEndpoint,
		client:   &http.Client{Timeout: 60 * time.Second},
		log:      log,
	}, nil
}

func (g *GoogleVision) Name() string { return "google_vision" }

type visionRequest struct {
	Requests []struct {
		Image struct {
			Content string `json:"content"`
		} `json:"image"`
		Features []struct {
			Type string `json:"type"`
		} `json:"features"`
	} `json:"requests"`
}

type visionResponse struct {
	Responses []struct {
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
		FullTextAnnotation *struct {
			Text  string `json:"text"`
			Pages []struct {
				Property *struct {
					DetectedLanguages []struct {
						LanguageCode string `json:"languageCode"`
					} `json:"detectedLanguages"`
				} `json:"property"`
				Blocks []struct {
					BoundingBox *struct {
						Vertices []struct {
							X int `json:"x"`
							Y int `json:"y"`
						} `json:"vertices"`
					} `json:"boundingBox"`
					Paragraphs []struct {
						Words []struct {
							Confidence float64 `json:"confidence"`
							Symbols    []struct {
								Text string `json:"text"`
							} `json:"symbols"`
						} `json:"words"`
					} `json:"paragraphs"`
				} `json:"blocks"`
			} `json:"pages"`
		} `json:"fullTextAnnotation"`
	} `json:"responses"`
}

// Extract sends one image through document text detection.
func (g *GoogleVision) Extract(ctx context.Context, imageBytes []byte) (*Result, error) {
	token, err := g.token(ctx)
	if err != nil {
		return nil, fmt.Errorf("vision auth failed: %w", err)
	}

	var reqBody visionRequest
	reqBody.Requests = make([]struct {
		Image struct {
			Content string `json:"content"`
		} `json:"image"`
		Features []struct {
			Type string `json:"type"`
		} `json:"features"`
	}, 1)
	reqBody.Requests[0].Image.Content = base64.StdEncoding.EncodeToString(imageBytes)
	reqBody.Requests[0].Features = []struct {
		Type string `json:"type"`
	}{{Type: "DOCUMENT_TEXT_DETECTION"}}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal vision request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("vision request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read vision response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("vision returned %d: %s", resp.StatusCode, firstLine(body))
	}

	var parsed visionResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to decode vision response: %w", err)
	}
	if len(parsed.Responses) == 0 {
		return nil, fmt.Errorf("vision returned no responses")
	}
	r := parsed.Responses[0]
	if r.Error != nil {
		return nil, fmt.Errorf("vision api error: %s", r.Error.Message)
	}

	result := &Result{Provider: g.Name(), Confidence: visionDefaultConf}
	if r.FullTextAnnotation == nil {
		return result, nil
	}
	result.Text = r.FullTextAnnotation.Text

	var total float64
	var count int
	for _, page := range r.FullTextAnnotation.Pages {
		if page.Property != nil && len(page.Property.DetectedLanguages) > 0 && result.Language == "" {
			result.Language = page.Property.DetectedLanguages[0].LanguageCode
		}
		for _, block := range page.Blocks {
			var text strings.Builder
			var conf float64
			var words int
			for _, para := range block.Paragraphs {
				for _, word := range para.Words {
					for _, sym := range word.Symbols {
						text.WriteString(sym.Text)
					}
					text.WriteString(" ")
					conf += word.Confidence
					words++
				}
			}
			if words == 0 {
				continue
			}
			avg := conf / float64(words)
			total += avg
			count++

			b := Block{Text: strings.TrimSpace(text.String()), Confidence: avg}
			if bb := block.BoundingBox; bb != nil && len(bb.Vertices) >= 3 {
				bbox := [4]int{
					bb.Vertices[0].X,
					bb.Vertices[0].Y,
					bb.Vertices[2].X - bb.Vertices[0].X,
					bb.Vertices[2].Y - bb.Vertices[0].Y,
				}
				b.BBox = &bbox
			}
			result.Blocks = append(result.Blocks, b)
		}
	}
	if count > 0 {
		result.Confidence = total / float64(count)
	}

	g.log.Debug("vision extraction complete",
		logging.F("chars", len(result.Text)),
		logging.F("confidence", result.Confidence))
	return result, nil
}

// ExtractPDF rasterizes with pdftoppm for parity with the local
// provider, then sends each page through Extract.
func (g *GoogleVision) ExtractPDF(ctx context.Context, pdfBytes []byte) ([]*Result, error) {
	pages, err := rasterizePDF(ctx, pdfBytes)
	if err != nil {
		return nil, err
	}

	var results []*Result
	for i, img := range pages {
		res, err := g.Extract(ctx, img)
		if err != nil {
			return nil, fmt.Errorf("vision failed on page %d: %w", i+1, err)
		}
		res.Page = i + 1
		for j := range res.Blocks {
			res.Blocks[j].Page = i + 1
		}
		results = append(results, res)
	}
	return results, nil
}

// token returns a cached access token, minting a new one via the
// JWT-bearer grant when expired.
func (g *GoogleVision) token(ctx context.Context) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.accessToken != "" && time.Now().Before(g.tokenExpiry.Add(-time.Minute)) {
		return g.accessToken, nil
	}

	if g.creds == nil {
		raw, err := os.ReadFile(g.keyFile)
		if err != nil {
			return "", fmt.Errorf("failed to read key file: %w", err)
		}
		var creds serviceAccount
		if err := json.Unmarshal(raw, &creds); err != nil {
			return "", fmt.Errorf("failed to parse key file: %w", err)
		}
		if creds.TokenURI == "" {
			creds.TokenURI = defaultTokenURI
		}
		g.creds = &creds
	}

	assertion, err := g.signAssertion()
	if err != nil {
		return "", err
	}

	form := url.Values{
		"grant_type": {"urn:ietf:params:oauth:grant-type:jwt-bearer"},
		"assertion":  {assertion},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.creds.TokenURI,
		strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("token exchange failed: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token exchange returned %d: %s", resp.StatusCode, firstLine(body))
	}

	var tokenResp struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return "", fmt.Errorf("failed to decode token response: %w", err)
	}
	if tokenResp.AccessToken == "" {
		return "", fmt.Errorf("token response has no access token")
	}

	g.accessToken = tokenResp.AccessToken
	g.tokenExpiry = time.Now().Add(time.Duration(tokenResp.ExpiresIn) * time.Second)
	return g.accessToken, nil
}

func (g *GoogleVision) signAssertion() (string, error) {
	key, err := jwk.ParseKey([]byte(g.creds.PrivateKey), jwk.WithPEM(true))
	if err != nil {
		return "", fmt.Errorf("failed to parse private key: %w", err)
	}

	now := time.Now()
	tok, err := jwt.NewBuilder().
		Issuer(g.creds.ClientEmail).
		Audience([]string{g.creds.TokenURI}).
		IssuedAt(now).
		Expiration(now.Add(time.Hour)).
		Claim("scope", visionScope).
		Build()
	if err != nil {
		return "", fmt.Errorf("failed to build assertion: %w", err)
	}

	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.RS256, key))
	if err != nil {
		return "", fmt.Errorf("failed to sign assertion: %w", err)
	}
	return string(signed), nil
}

func firstLine(b []byte) string {
	s := strings.TrimSpace(string(b))
	if i := strings.IndexByte(s, '\n'); i > 0 {
		s = s[:i]
	}
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}
