package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/alcounit/jserrorcollector/pkg/collector"
	"github.com/alcounit/jserrorcollector/pkg/extension"
	"github.com/alcounit/jserrorcollector/pkg/jserror"
	"github.com/alcounit/jserrorcollector/pkg/profile"
	"github.com/alcounit/jserrorcollector/pkg/proxy"
	"github.com/alcounit/jserrorcollector/pkg/selenium"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	tebeka "github.com/tebeka/selenium"
)

const hubPrefix = "/wd/hub"

var (
	ErrMissingCapabilities = errors.New("missing request capabilities")
	ErrorReadRequestBody   = errors.New("failed to read request body")
	ErrDecodeRequestBody   = errors.New("failed to decode request body")
	ErrMissingSessionId    = errors.New("missing required url param: sessionId")
	ErrInvalidSessionId    = errors.New("invalid url param: sessionId")
)

type Service struct {
	config    ServiceConfig
	metrics   *Metrics
	proxyOpts []proxy.HTTPReverseProxyOptions
}

type ServiceConfig struct {
	HubURL          *url.URL
	InjectExtension bool
	EnableBiDi      bool
	ConsoleLogLevel string
	DrainTimeout    time.Duration
	MaxRequestBytes int64
	HTTPClient      *http.Client
}

func NewService(config ServiceConfig, metrics *Metrics, proxyOpts ...proxy.HTTPReverseProxyOptions) *Service {
	if config.HTTPClient == nil {
		config.HTTPClient = http.DefaultClient
	}
	return &Service{
		config:    config,
		metrics:   metrics,
		proxyOpts: proxyOpts,
	}
}

func (s *Service) hubProxy(opts ...proxy.HTTPReverseProxyOptions) *proxy.HTTPReverseProxy {
	all := []proxy.HTTPReverseProxyOptions{
		proxy.WithStripPrefix(hubPrefix),
		proxy.WithErrorHandler(hubError),
	}
	if s.config.HTTPClient.Transport != nil {
		all = append(all, proxy.WithTransport(s.config.HTTPClient.Transport))
	}
	all = append(all, s.proxyOpts...)
	return proxy.NewHTTPReverseProxy(s.config.HubURL, append(all, opts...)...)
}

func hubError(rw http.ResponseWriter, req *http.Request, err error) {
	zerolog.Ctx(req.Context()).Err(err).Str("path", req.URL.Path).Msg("hub request failed")
	writeErrorResponse(rw, http.StatusBadGateway, selenium.ErrUnknown(err))
}

// CreateSession forwards a new session request to the hub, registering the
// collector extension with the requested browser profile first.
func (s *Service) CreateSession(rw http.ResponseWriter, req *http.Request) {
	log := zerolog.Ctx(req.Context())

	if req.Body == nil {
		log.Err(ErrMissingCapabilities).Msg("empty request body")
		writeErrorResponse(rw, http.StatusBadRequest, selenium.ErrInvalidArgument(ErrMissingCapabilities))
		return
	}

	if s.config.MaxRequestBytes > 0 {
		req.Body = http.MaxBytesReader(rw, req.Body, s.config.MaxRequestBytes)
	}

	body, err := io.ReadAll(req.Body)
	if err != nil {
		log.Err(err).Msg("failed to read request body")
		writeErrorResponse(rw, http.StatusBadRequest, selenium.ErrInvalidArgument(ErrorReadRequestBody))
		return
	}
	defer req.Body.Close()

	var caps selenium.Capabilities
	if err := json.Unmarshal(body, &caps); err != nil {
		log.Err(err).Msg("failed to decode request body")
		writeErrorResponse(rw, http.StatusBadRequest, selenium.ErrInvalidArgument(ErrDecodeRequestBody))
		return
	}

	flat, err := caps.Flatten()
	if err != nil {
		log.Err(err).Msg("failed to process request capabilities")
		writeErrorResponse(rw, http.StatusBadRequest, selenium.ErrInvalidArgument(err))
		return
	}
	browserName := flat.GetBrowserName()

	rewritten := false
	if _, ok := caps["capabilities"]; !ok {
		caps["capabilities"] = flat.W3C()["capabilities"]
		rewritten = true
	}

	if s.config.EnableBiDi {
		for _, target := range caps.Targets("webSocketUrl") {
			selenium.Capabilities(target).EnableBiDi()
		}
		rewritten = true
	}

	injected := false
	if s.config.InjectExtension {
		injected, err = s.inject(caps, browserName)
		if err != nil {
			log.Err(err).Str("browser", browserName).Msg("failed to register collector extension")
			writeErrorResponse(rw, http.StatusInternalServerError, selenium.ErrUnknown(err))
			return
		}
	}

	if rewritten || injected {
		if body, err = json.Marshal(caps); err != nil {
			log.Err(err).Msg("failed to encode request body")
			writeErrorResponse(rw, http.StatusInternalServerError, selenium.ErrUnknown(err))
			return
		}
	}

	log.Info().
		Str("browser", browserName).
		Str("version", flat.GetBrowserVersion()).
		Bool("injected", injected).
		Msg("forwarding new session request")

	s.metrics.recordSession(browserName, injected)
	s.hubProxy(proxy.WithBody(body), proxy.WithResponseModifier(newSessionResponse(req))).ServeHTTP(rw, req)
}

// newSessionResponse points the BiDi endpoint of a created session at this
// service, so BiDi traffic is relayed through ProxySession.
func newSessionResponse(req *http.Request) proxy.ResponseModifier {
	return func(resp *http.Response) error {
		if resp.StatusCode != http.StatusOK || resp.Header.Get("Content-Encoding") != "" {
			return nil
		}

		raw, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return err
		}

		var payload selenium.Payload
		if err := json.Unmarshal(raw, &payload); err == nil {
			scheme := "ws"
			if req.TLS != nil {
				scheme = "wss"
			}
			if selenium.UpdateBiDiURL(scheme, req.Host, payload) {
				if updated, err := json.Marshal(payload); err == nil {
					raw = updated
				}
			}

			if sessionId, ok := payload.GetSessionId(); ok {
				zerolog.Ctx(req.Context()).Info().Str("sessionId", sessionId).Msg("session created")
			}
		}

		resp.Body = io.NopCloser(bytes.NewReader(raw))
		resp.ContentLength = int64(len(raw))
		resp.Header.Set("Content-Length", strconv.Itoa(len(raw)))
		return nil
	}
}

// inject registers the extension with every capability set of the request
// that carries options for the browser, or with alwaysMatch when none does.
// Browsers without extension support are left untouched.
func (s *Service) inject(caps selenium.Capabilities, browserName string) (bool, error) {
	key, err := profile.OptionsKey(browserName)
	if err != nil {
		return false, nil
	}

	targets := caps.Targets(key)
	for _, target := range targets {
		if err := profile.Add(tebeka.Capabilities(target), browserName, profile.WithConsoleLogLevel(s.config.ConsoleLogLevel)); err != nil {
			return false, err
		}
	}
	return len(targets) > 0, nil
}

// ProxySession relays session commands, and BiDi websockets, to the hub.
func (s *Service) ProxySession(rw http.ResponseWriter, req *http.Request) {
	log := zerolog.Ctx(req.Context())
	sessionId := chi.URLParam(req, "sessionId")
	if sessionId == "" {
		log.Error().Msg("missing required url param: sessionId")
		writeErrorResponse(rw, http.StatusBadRequest, selenium.ErrInvalidSessionId(ErrMissingSessionId))
		return
	}

	if proxy.IsWebSocketRequest(req) {
		resolver := func(r *http.Request) (*url.URL, error) {
			u := s.config.HubURL.JoinPath(strings.TrimPrefix(r.URL.Path, hubPrefix))
			switch u.Scheme {
			case "https":
				u.Scheme = "wss"
			default:
				u.Scheme = "ws"
			}
			u.User = nil
			return u, nil
		}

		log.Info().Str("sessionId", sessionId).Msg("proxying websocket request to hub")

		rp := proxy.NewWebSocketReverseProxy(resolver,
			proxy.WithOnConnect(s.metrics.bidiConns.Inc),
			proxy.WithOnClose(s.metrics.bidiConns.Dec),
			proxy.WithOnMessage(s.metrics.recordMessage),
		)
		rp.ServeHTTP(rw, req)
		return
	}

	log.Debug().Str("sessionId", sessionId).Msg("proxying request to hub")
	s.hubProxy().ServeHTTP(rw, req)
}

func (s *Service) SessionStatus(rw http.ResponseWriter, req *http.Request) {
	log := zerolog.Ctx(req.Context())

	var status selenium.Status
	status.Set("jserrors service started", true)
	status.SetCollector(extension.Name, s.config.InjectExtension, []string{profile.Firefox, profile.Chrome})

	raw, err := json.Marshal(&status)
	if err != nil {
		log.Err(err).Msg("error encoding the response body")
		rw.WriteHeader(http.StatusInternalServerError)
		return
	}

	rw.Header().Set("Content-Type", "application/json")
	rw.Write(raw)
}

// ReadErrors drains the collected JavaScript errors of a hub session.
func (s *Service) ReadErrors(rw http.ResponseWriter, req *http.Request) {
	log := zerolog.Ctx(req.Context())

	sessionId := chi.URLParam(req, "sessionId")
	if sessionId == "" {
		log.Error().Msg("missing required url param: sessionId")
		s.metrics.recordDrain("invalid", nil)
		writeErrorResponse(rw, http.StatusBadRequest, selenium.ErrInvalidSessionId(ErrMissingSessionId))
		return
	}

	if _, err := uuid.Parse(sessionId); err != nil {
		log.Error().Str("sessionId", sessionId).Msg("invalid url param: sessionId")
		s.metrics.recordDrain("invalid", nil)
		writeErrorResponse(rw, http.StatusBadRequest, selenium.ErrInvalidSessionId(ErrInvalidSessionId))
		return
	}

	ctx := req.Context()
	if s.config.DrainTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.DrainTimeout)
		defer cancel()
	}

	remote := selenium.NewRemote(ctx, s.config.HubURL, sessionId, s.config.HTTPClient)
	errs, err := collector.New(remote, collector.WithLogger(*log)).ReadErrors()
	if err != nil {
		if selenium.IsCode(err, selenium.CodeInvalidSessionId) {
			log.Warn().Err(err).Str("sessionId", sessionId).Msg("session not found on hub")
		} else {
			log.Err(err).Str("sessionId", sessionId).Msg("failed to read javascript errors")
		}
		s.metrics.recordDrain("failed", nil)

		se := selenium.AsSeleniumError(err)
		switch se.Value.Name {
		case selenium.CodeInvalidSessionId:
			writeErrorResponse(rw, http.StatusNotFound, se)
		case selenium.CodeScriptTimeout:
			writeErrorResponse(rw, http.StatusGatewayTimeout, se)
		default:
			writeErrorResponse(rw, http.StatusBadGateway, se)
		}
		return
	}

	if errs == nil {
		errs = jserror.Errors{}
	}

	log.Info().Str("sessionId", sessionId).Int("count", len(errs)).Msg("javascript errors read")
	s.metrics.recordDrain("success", errs)

	if req.URL.Query().Get("format") == "text" {
		writeText(rw, errs)
		return
	}

	rw.Header().Set("Content-Type", "application/json")
	json.NewEncoder(rw).Encode(struct {
		Value jserror.Errors `json:"value"`
	}{Value: errs})
}

func writeText(rw http.ResponseWriter, errs jserror.Errors) {
	rw.Header().Set("Content-Type", "text/plain; charset=utf-8")
	for _, e := range errs {
		io.WriteString(rw, e.String()+"\n")
	}
}

func writeErrorResponse(rw http.ResponseWriter, status int, err *selenium.SeleniumError) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	json.NewEncoder(rw).Encode(err)
}
