package qdrant

import (
	"context"
	"errors"
	"fmt"
	"globekeys/internal/config"
	"net"
	neturl "net/url"
	"os"
	"strconv"
	"strings"

	"github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	defaultHost = "localhost"
	defaultPort = 6334
)

// Options locate the Qdrant gRPC endpoint
type Options struct {
	Host   string
	Port   int
	APIKey string
}

// OptionsFromEnv reads QDRANT_URL (host, host:port or URL) and the first
// API key variable that is set.
func OptionsFromEnv() (Options, error) {
	host, port, err := parseQdrantAddress(config.Get("QDRANT_URL", "qdrant_url"))
	if err != nil {
		return Options{}, fmt.Errorf("invalid QDRANT_URL: %w", err)
	}
	return Options{Host: host, Port: port, APIKey: getQdrantAPIKey()}, nil
}

// Client stores one vector per catalog message. Collections use cosine
// distance; payload fields registered with IndexKeywordFields get a keyword
// index when a collection is created so stale messages can be deleted by
// hash without a full scan.
type Client struct {
	points        qdrant.PointsClient
	collections   qdrant.CollectionsClient
	conn          *grpc.ClientConn
	keywordFields []string
}

// NewClient dials the endpoint described by the environment
func NewClient() (*Client, error) {
	opts, err := OptionsFromEnv()
	if err != nil {
		return nil, err
	}
	return Dial(opts)
}

func Dial(opts Options) (*Client, error) {
	grpcClient, err := qdrant.NewGrpcClient(&qdrant.Config{
		Host:   opts.Host,
		Port:   opts.Port,
		APIKey: opts.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to dial qdrant at %s:%d: %w", opts.Host, opts.Port, err)
	}

	return &Client{
		points:      grpcClient.Points(),
		collections: grpcClient.Collections(),
		conn:        grpcClient.Conn(),
	}, nil
}

// IndexKeywordFields names the payload fields indexed on collection creation
func (c *Client) IndexKeywordFields(fields ...string) {
	c.keywordFields = append(c.keywordFields[:0], fields...)
}

func parseQdrantAddress(raw string) (string, int, error) {
	endpoint := strings.TrimSpace(raw)
	if endpoint == "" {
		return defaultHost, defaultPort, nil
	}

	if strings.Contains(endpoint, "://") {
		parsed, err := neturl.Parse(endpoint)
		if err != nil {
			return "", 0, err
		}
		if parsed.Host == "" {
			return defaultHost, defaultPort, nil
		}
		endpoint = parsed.Host
	}

	host, portStr, err := net.SplitHostPort(endpoint)
	if err != nil {
		var addrErr *net.AddrError
		if errors.As(err, &addrErr) && strings.Contains(addrErr.Err, "missing port") {
			return endpoint, defaultPort, nil
		}
		return "", 0, err
	}

	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, err
	}
	if host == "" {
		host = defaultHost
	}
	return host, port, nil
}

func getQdrantAPIKey() string {
	return config.Get(
		"QDRANT_API_KEY",
		"qdrant_api_key",
		"QDRANT_API_TOKEN",
		"qdrant_api_token",
		"QDRANT_AUTH_TOKEN",
		"qdrant_auth_token",
		"QDRANT_PASSWORD",
		"qdrant_password",
	)
}

func (c *Client) Close() error {
	return c.conn.Close()
}

// EnsureCollection makes name a cosine collection of vectorSize. A collection
// left by a different embedding model (other dimension) is dropped and
// recreated; its messages are re-embedded on the next index run.
func (c *Client) EnsureCollection(ctx context.Context, name string, vectorSize uint64) error {
	info, err := c.collections.Get(ctx, &qdrant.GetCollectionInfoRequest{CollectionName: name})
	switch {
	case err == nil:
		existing, known := collectionVectorSize(info)
		if !known || existing == vectorSize {
			return nil
		}
		fmt.Fprintf(os.Stderr, "⚠ Collection %s has %d-dimensional vectors, model returns %d. Recreating...\n", name, existing, vectorSize)
		if err := c.DeleteCollection(ctx, name); err != nil {
			return fmt.Errorf("failed to delete collection: %w", err)
		}
	case status.Code(err) != codes.NotFound:
		return fmt.Errorf("failed to get collection %s: %w", name, err)
	}

	_, err = c.collections.Create(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: &qdrant.VectorsConfig{
			Config: &qdrant.VectorsConfig_Params{
				Params: &qdrant.VectorParams{
					Size:     vectorSize,
					Distance: qdrant.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create collection %s: %w", name, err)
	}

	wait := true
	for _, field := range c.keywordFields {
		_, err := c.points.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: name,
			FieldName:      field,
			FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
			Wait:           &wait,
		})
		if err != nil {
			return fmt.Errorf("failed to index payload field %s: %w", field, err)
		}
	}
	return nil
}

func collectionVectorSize(info *qdrant.GetCollectionInfoResponse) (uint64, bool) {
	params := info.GetResult().GetConfig().GetParams().GetVectorsConfig().GetParams()
	if params == nil {
		return 0, false
	}
	return params.GetSize(), true
}

// DeleteCollection drops a project's messages. A missing collection is not
// an error.
func (c *Client) DeleteCollection(ctx context.Context, name string) error {
	_, err := c.collections.Delete(ctx, &qdrant.DeleteCollection{CollectionName: name})
	if status.Code(err) == codes.NotFound {
		return nil
	}
	return err
}

// Upsert writes points and waits until they are searchable
func (c *Client) Upsert(ctx context.Context, collectionName string, points []*qdrant.PointStruct) error {
	wait := true
	_, err := c.points.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collectionName,
		Points:         points,
		Wait:           &wait,
	})
	return err
}

func (c *Client) Search(ctx context.Context, collectionName string, vector []float32, limit uint64) ([]*qdrant.ScoredPoint, error) {
	resp, err := c.points.Search(ctx, &qdrant.SearchPoints{
		CollectionName: collectionName,
		Vector:         vector,
		Limit:          limit,
		WithPayload:    &qdrant.WithPayloadSelector{SelectorOptions: &qdrant.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, err
	}
	return resp.Result, nil
}

// Scroll pages through a collection with payloads and vectors. A nil next
// offset marks the last page.
func (c *Client) Scroll(ctx context.Context, collectionName string, limit uint32, offset *qdrant.PointId) ([]*qdrant.RetrievedPoint, *qdrant.PointId, error) {
	resp, err := c.points.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: collectionName,
		Limit:          &limit,
		Offset:         offset,
		WithPayload:    &qdrant.WithPayloadSelector{SelectorOptions: &qdrant.WithPayloadSelector_Enable{Enable: true}},
		WithVectors:    &qdrant.WithVectorsSelector{SelectorOptions: &qdrant.WithVectorsSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, nil, err
	}
	return resp.Result, resp.NextPageOffset, nil
}

func (c *Client) DeleteByFilter(ctx context.Context, collectionName string, filter *qdrant.Filter) error {
	wait := true
	_, err := c.points.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: collectionName,
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Filter{Filter: filter},
		},
		Wait: &wait,
	})
	return err
}

// KeywordFilter matches points whose payload field equals any of values
func KeywordFilter(field string, values []string) *qdrant.Filter {
	conds := make([]*qdrant.Condition, 0, len(values))
	for _, v := range values {
		conds = append(conds, &qdrant.Condition{
			ConditionOneOf: &qdrant.Condition_Field{
				Field: &qdrant.FieldCondition{
					Key:   field,
					Match: &qdrant.Match{MatchValue: &qdrant.Match_Keyword{Keyword: v}},
				},
			},
		})
	}
	return &qdrant.Filter{Should: conds}
}

func PayloadToMap(payload map[string]*qdrant.Value) map[string]interface{} {
	result := make(map[string]interface{}, len(payload))
	for k, v := range payload {
		result[k] = valueToInterface(v)
	}
	return result
}

func valueToInterface(v *qdrant.Value) interface{} {
	if v == nil {
		return nil
	}
	switch val := v.Kind.(type) {
	case *qdrant.Value_StringValue:
		return val.StringValue
	case *qdrant.Value_IntegerValue:
		return val.IntegerValue
	case *qdrant.Value_DoubleValue:
		return val.DoubleValue
	case *qdrant.Value_BoolValue:
		return val.BoolValue
	case *qdrant.Value_ListValue:
		list := make([]interface{}, 0, len(val.ListValue.GetValues()))
		for _, item := range val.ListValue.GetValues() {
			list = append(list, valueToInterface(item))
		}
		return list
	case *qdrant.Value_NullValue:
		return nil
	default:
		return fmt.Sprintf("%v", v)
	}
}

func MapToPayload(m map[string]interface{}) map[string]*qdrant.Value {
	result := make(map[string]*qdrant.Value, len(m))
	for k, v := range m {
		result[k] = interfaceToValue(v)
	}
	return result
}

func interfaceToValue(i interface{}) *qdrant.Value {
	switch v := i.(type) {
	case string:
		return &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: v}}
	case int:
		return &qdrant.Value{Kind: &qdrant.Value_IntegerValue{IntegerValue: int64(v)}}
	case int64:
		return &qdrant.Value{Kind: &qdrant.Value_IntegerValue{IntegerValue: v}}
	case float64:
		return &qdrant.Value{Kind: &qdrant.Value_DoubleValue{DoubleValue: v}}
	case bool:
		return &qdrant.Value{Kind: &qdrant.Value_BoolValue{BoolValue: v}}
	case []string:
		values := make([]*qdrant.Value, 0, len(v))
		for _, item := range v {
			values = append(values, interfaceToValue(item))
		}
		return &qdrant.Value{Kind: &qdrant.Value_ListValue{ListValue: &qdrant.ListValue{Values: values}}}
	case nil:
		return &qdrant.Value{Kind: &qdrant.Value_NullValue{}}
	default:
		return &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: fmt.Sprintf("%v", v)}}
	}
}
