package kraken

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/bytedance/sonic"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"resty.dev/v3"

	"kraken/internal/circuitbreaker"
	httpclient "kraken/internal/http"
	"kraken/internal/nonce"
	"kraken/internal/secrets"
	"kraken/internal/signature"
	"kraken/pkg/core"
)

// CoreClient signs and sends REST requests without any rate limiting.
type CoreClient struct {
	config     *core.Config
	httpClient *httpclient.Client
	secrets    secrets.Provider
	nonces     nonce.Provider
	breaker    *circuitbreaker.Breaker
	logger     zerolog.Logger
}

// Option is a functional option for configuring a CoreClient.
type Option func(*Options)

// Options holds the collaborators a CoreClient can be given.
type Options struct {
	Secrets secrets.Provider
	Nonces  nonce.Provider
	Logger  zerolog.Logger
}

// WithSecrets sets the credential provider, e.g. a rotating secrets.KeyRing.
// It takes precedence over Config.Credentials.
func WithSecrets(p secrets.Provider) Option {
	return func(o *Options) {
		o.Secrets = p
	}
}

// WithNonceProvider sets the nonce source. Clients sharing an API key must
// share the provider.
func WithNonceProvider(p nonce.Provider) Option {
	return func(o *Options) {
		o.Nonces = p
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(o *Options) {
		o.Logger = l
	}
}

var validate = validator.New()

func NewCoreClient(config *core.Config, opts ...Option) (*CoreClient, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	options := &Options{
		Logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(options)
	}

	logger := options.Logger
	if config.LogLevel != "" {
		level, err := zerolog.ParseLevel(config.LogLevel)
		if err != nil {
			return nil, fmt.Errorf("parse log level: %w", err)
		}
		logger = logger.Level(level)
	}
	logger = logger.With().Str("exchange", core.Exchange).Logger()

	if options.Secrets == nil {
		if config.Credentials != nil {
			options.Secrets = secrets.NewStatic(config.Credentials.APIKey, config.Credentials.SecretKey)
		} else {
			options.Secrets = secrets.NewStatic("", "")
		}
	}
	if options.Nonces == nil {
		options.Nonces = nonce.NewIncreasing()
	}

	httpClient, err := httpclient.NewClient(&httpclient.Config{
		BaseURL:   config.BaseURL,
		Timeout:   config.Timeout,
		UserAgent: config.UserAgent,
	}, httpclient.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("create http client: %w", err)
	}

	var breaker *circuitbreaker.Breaker
	if config.CircuitBreakerEnabled {
		breaker = circuitbreaker.New(circuitbreaker.Config{
			FailThreshold:    config.CircuitBreakerFailThreshold,
			SuccessThreshold: config.CircuitBreakerSuccessThreshold,
			Timeout:          config.CircuitBreakerTimeout,
		}, circuitbreaker.WithLogger(logger))
	}

	return &CoreClient{
		config:     config,
		httpClient: httpClient,
		secrets:    options.Secrets,
		nonces:     options.Nonces,
		breaker:    breaker,
		logger:     logger,
	}, nil
}

func (c *CoreClient) Close() error {
	return c.httpClient.Close()
}

func (c *CoreClient) GetServerTime(ctx context.Context) (*Response[ServerTime], error) {
	return do[ServerTime](ctx, c, core.NewRequest(core.OpServerTime))
}

func (c *CoreClient) GetSystemStatus(ctx context.Context) (*Response[SystemStatus], error) {
	return do[SystemStatus](ctx, c, core.NewRequest(core.OpSystemStatus))
}

func (c *CoreClient) GetTickerInformation(ctx context.Context, req *TickerRequest) (*Response[map[string]TickerInfo], error) {
	if req == nil {
		req = &TickerRequest{}
	}
	if err := validateRequest(core.OpTicker, req); err != nil {
		return nil, err
	}
	return do[map[string]TickerInfo](ctx, c, core.NewRequest(core.OpTicker).SetQueryParams(req.params()))
}

func (c *CoreClient) GetOHLC(ctx context.Context, req *OHLCRequest) (*Response[OHLCResult], error) {
	if err := validateRequest(core.OpOHLC, req); err != nil {
		return nil, err
	}
	return do[OHLCResult](ctx, c, core.NewRequest(core.OpOHLC).SetQueryParams(req.params()))
}

func (c *CoreClient) GetRecentTrades(ctx context.Context, req *RecentTradesRequest) (*Response[RecentTradesResult], error) {
	if err := validateRequest(core.OpRecentTrades, req); err != nil {
		return nil, err
	}
	return do[RecentTradesResult](ctx, c, core.NewRequest(core.OpRecentTrades).SetQueryParams(req.params()))
}

func (c *CoreClient) GetAccountBalance(ctx context.Context) (*Response[AccountBalance], error) {
	return do[AccountBalance](ctx, c, core.NewRequest(core.OpBalance))
}

func (c *CoreClient) GetOpenOrders(ctx context.Context, req *OpenOrdersRequest) (*Response[OpenOrders], error) {
	if req == nil {
		req = &OpenOrdersRequest{}
	}
	return do[OpenOrders](ctx, c, core.NewRequest(core.OpOpenOrders).SetFormParams(req.params()))
}

func (c *CoreClient) GetClosedOrders(ctx context.Context, req *ClosedOrdersRequest) (*Response[ClosedOrders], error) {
	if req == nil {
		req = &ClosedOrdersRequest{}
	}
	if err := validateRequest(core.OpClosedOrders, req); err != nil {
		return nil, err
	}
	return do[ClosedOrders](ctx, c, core.NewRequest(core.OpClosedOrders).SetFormParams(req.params()))
}

func (c *CoreClient) AddOrder(ctx context.Context, req *AddOrderRequest) (*Response[AddOrder], error) {
	if err := validateRequest(core.OpAddOrder, req); err != nil {
		return nil, err
	}
	return do[AddOrder](ctx, c, core.NewRequest(core.OpAddOrder).SetFormParams(req.params()))
}

func (c *CoreClient) AddOrderBatch(ctx context.Context, req *AddOrderBatchRequest) (*Response[AddOrderBatch], error) {
	if err := validateRequest(core.OpAddOrderBatch, req); err != nil {
		return nil, err
	}
	return do[AddOrderBatch](ctx, c, core.NewRequest(core.OpAddOrderBatch).SetBody(req))
}

func (c *CoreClient) EditOrder(ctx context.Context, req *EditOrderRequest) (*Response[OrderEdit], error) {
	if err := validateRequest(core.OpEditOrder, req); err != nil {
		return nil, err
	}
	return do[OrderEdit](ctx, c, core.NewRequest(core.OpEditOrder).SetFormParams(req.params()))
}

func (c *CoreClient) CancelOrder(ctx context.Context, req *CancelOrderRequest) (*Response[CancelOrder], error) {
	return do[CancelOrder](ctx, c, core.NewRequest(core.OpCancelOrder).SetFormParams(req.params()))
}

func (c *CoreClient) CancelAllOrders(ctx context.Context) (*Response[CancelOrder], error) {
	return do[CancelOrder](ctx, c, core.NewRequest(core.OpCancelAll))
}

func (c *CoreClient) CancelAllOrdersAfter(ctx context.Context, req *CancelAllOrdersAfterRequest) (*Response[CancelAllOrdersAfter], error) {
	if err := validateRequest(core.OpCancelAllOrdersAfter, req); err != nil {
		return nil, err
	}
	return do[CancelAllOrdersAfter](ctx, c, core.NewRequest(core.OpCancelAllOrdersAfter).SetFormParams(req.params()))
}

func (c *CoreClient) CancelOrderBatch(ctx context.Context, req *CancelOrderBatchRequest) (*Response[CancelOrder], error) {
	if err := validateRequest(core.OpCancelOrderBatch, req); err != nil {
		return nil, err
	}
	return do[CancelOrder](ctx, c, core.NewRequest(core.OpCancelOrderBatch).SetBody(req))
}

func (c *CoreClient) GetWebSocketsToken(ctx context.Context) (*Response[WebSocketToken], error) {
	return do[WebSocketToken](ctx, c, core.NewRequest(core.OpWebSocketsToken))
}

func validateRequest(op core.Operation, req any) error {
	if err := validate.Struct(req); err != nil {
		return core.NewExchangeError(core.Exchange, core.ErrorTypeBadRequest, 0,
			fmt.Sprintf("%s: %v", op, err)).WithCode(core.ErrCodeInvalidArguments)
	}
	return nil
}

// encodeBody renders the body of a private request with the nonce included.
// A request with a Body is sent as JSON with the nonce spliced in as the
// first member; otherwise its form parameters are sent url-encoded.
func encodeBody(r *core.Request, n uint64) (body, contentType string, err error) {
	if r.Body == nil {
		values := r.Form.Values()
		values.Set("nonce", strconv.FormatUint(n, 10))
		return values.Encode(), httpclient.ContentTypeForm, nil
	}

	data, err := sonic.Marshal(r.Body)
	if err != nil {
		return "", "", fmt.Errorf("marshal body: %w", err)
	}
	if len(data) < 2 || data[0] != '{' {
		return "", "", fmt.Errorf("marshal body: want object, got %q", data)
	}
	body = `{"nonce":` + strconv.FormatUint(n, 10)
	if rest := string(data[1:]); rest != "}" {
		body += "," + rest
	} else {
		body += "}"
	}
	return body, httpclient.ContentTypeJSON, nil
}

// do sends r, signing it when the endpoint is private, and decodes the
// envelope.
func do[T any](ctx context.Context, c *CoreClient, r *core.Request) (*Response[T], error) {
	op := r.Operation
	if !op.IsPrivate() {
		var opts []httpclient.RequestOption
		if len(r.Query) > 0 {
			opts = append(opts, httpclient.WithQueryParams(r.Query.Strings()))
		}
		resp, err := c.send(ctx, op, func() (*resty.Response, error) {
			return c.httpClient.Get(ctx, r.Path(), opts...)
		})
		if err != nil {
			return nil, err
		}
		return decode[T](op, resp)
	}

	creds, err := c.secrets.Credentials()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	n := c.nonces.Nonce()
	body, contentType, err := encodeBody(r, n)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	sig, err := signature.Sign(creds.Secret, r.Path(), n, body)
	if err != nil {
		return nil, fmt.Errorf("%s: sign request: %w", op, err)
	}
	r.SetHeader("API-Key", creds.Key).SetHeader("API-Sign", sig)
	headers := httpclient.WithHeaders(r.Headers)

	resp, err := c.send(ctx, op, func() (*resty.Response, error) {
		if contentType == httpclient.ContentTypeJSON {
			return c.httpClient.PostJSON(ctx, r.Path(), []byte(body), headers)
		}
		return c.httpClient.PostForm(ctx, r.Path(), body, headers)
	})
	if err == nil {
		var result *Response[T]
		result, err = decode[T](op, resp)
		if err == nil {
			return result, nil
		}
	}

	if observer, ok := c.secrets.(secrets.ErrorObserver); ok {
		observer.OnError(err)
	}
	return nil, err
}

// send runs call behind the circuit breaker. Only transport failures and
// 5xx statuses count against the breaker.
func (c *CoreClient) send(ctx context.Context, op core.Operation, call func() (*resty.Response, error)) (*resty.Response, error) {
	if c.breaker != nil && !c.breaker.Allow() {
		return nil, fmt.Errorf("%s: %w", op, core.ErrCircuitBreakerOpen)
	}

	resp, err := call()

	if c.breaker != nil {
		c.breaker.Record(err == nil && resp.StatusCode() < 500)
	}

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%s: %w", op, ctxErr)
		}
		if errors.Is(err, core.ErrClientClosed) {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		exErr := core.NewExchangeError(core.Exchange, core.ErrorTypeNetwork, 0, err.Error()).
			WithCode(core.ErrCodeNetwork)
		exErr.RawError = err
		return nil, exErr
	}
	return resp, nil
}

func decode[T any](op core.Operation, resp *resty.Response) (*Response[T], error) {
	status := resp.StatusCode()
	body := resp.Bytes()
	if !resp.IsSuccess() {
		return nil, core.NewExchangeError(core.Exchange, core.ErrorTypeFromStatus(status), status,
			string(body)).WithCode(core.ErrCodeHTTPStatus)
	}

	var out Response[T]
	if err := sonic.Unmarshal(body, &out); err != nil {
		exErr := core.NewExchangeError(core.Exchange, core.ErrorTypeUnknown, status,
			fmt.Sprintf("decode %s response: %v", op, err)).WithCode(core.ErrCodeDecode)
		exErr.RawError = string(body)
		return nil, exErr
	}

	if len(out.Error) > 0 {
		if exErr, known := core.ParseKrakenError(out.Error[0]); known {
			exErr.StatusCode = status
			exErr.RawError = out.Error
			return nil, exErr
		}
	}
	return &out, nil
}
