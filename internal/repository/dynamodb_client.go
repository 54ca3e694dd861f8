package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"heritage-guide/internal/domain"
)

const (
	pkPrefixDay  = "SCANDAY#"
	skPrefixScan = "SCAN#"
	skStats      = "STATS#"
	ttlDuration  = 30 * 24 * time.Hour // 30-day TTL
	dayLayout    = "2006-01-02"

	attrModePrefix   = "mode_"
	attrObjectPrefix = "object_"

	defaultRecentLimit = 20
)

// dynamodbAPI is the minimal DynamoDB interface required by Client.
// Defined here for testability.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// Client is the scan event log. Events are partitioned by UTC day so the
// most recent scans of a day come back from a single query.
type Client struct {
	api       dynamodbAPI
	tableName string
}

func New(api dynamodbAPI, tableName string) (*Client, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	return &Client{api: api, tableName: tableName}, nil
}

var (
	now        = time.Now
	newEventID = uuid.NewString
)

func dayPK(day time.Time) string {
	return pkPrefixDay + day.UTC().Format(dayLayout)
}

func scanSK(ts time.Time, eventID string) string {
	return skPrefixScan + ts.UTC().Format(time.RFC3339Nano) + "#" + eventID
}

// ttlValue returns a Unix timestamp 30 days after ts.
func ttlValue(ts time.Time) int64 {
	return ts.Add(ttlDuration).Unix()
}

// NewScanEvent fills in keys, id, timestamp and TTL for an outcome.
func NewScanEvent(objectID string, confidence float64, mode, provider string) domain.ScanEvent {
	ts := now().UTC()
	id := newEventID()
	return domain.ScanEvent{
		PK:         dayPK(ts),
		SK:         scanSK(ts, id),
		EventID:    id,
		ObjectID:   objectID,
		Confidence: confidence,
		Mode:       mode,
		Provider:   provider,
		CreatedAt:  ts,
		TTL:        ttlValue(ts),
	}
}

// RecordScan writes the event and bumps the day's counters in one
// transaction. Missing keys are filled in as NewScanEvent would.
func (c *Client) RecordScan(ctx context.Context, ev domain.ScanEvent) error {
	if strings.TrimSpace(ev.Mode) == "" {
		return errors.New("repository: RecordScan: mode is required")
	}
	if ev.PK == "" || ev.SK == "" {
		ev = NewScanEvent(ev.ObjectID, ev.Confidence, ev.Mode, ev.Provider)
	}

	_, err := c.api.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{
				Put: &types.Put{
					TableName:           aws.String(c.tableName),
					Item:                eventItem(ev),
					ConditionExpression: aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
				},
			},
			{
				Update: statsUpdate(c.tableName, ev),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("repository: RecordScan: %w", err)
	}
	return nil
}

func statsUpdate(table string, ev domain.ScanEvent) *types.Update {
	names := map[string]string{
		"#total": "total",
		"#mode":  attrModePrefix + ev.Mode,
		"#ttl":   "ttl",
	}
	expr := "ADD #total :one, #mode :one"
	if ev.ObjectID != "" {
		names["#object"] = attrObjectPrefix + ev.ObjectID
		expr += ", #object :one"
	}
	expr += " SET #ttl = :ttl"

	return &types.Update{
		TableName: aws.String(table),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: ev.PK},
			"SK": &types.AttributeValueMemberS{Value: skStats},
		},
		UpdateExpression:         aws.String(expr),
		ExpressionAttributeNames: names,
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":one": &types.AttributeValueMemberN{Value: "1"},
			":ttl": &types.AttributeValueMemberN{Value: strconv.FormatInt(ev.TTL, 10)},
		},
	}
}

// RecentScans returns up to limit events of the given UTC day, newest first.
func (c *Client) RecentScans(ctx context.Context, day time.Time, limit int) ([]domain.ScanEvent, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}

	in := &dynamodb.QueryInput{
		TableName:              aws.String(c.tableName),
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":     &types.AttributeValueMemberS{Value: dayPK(day)},
			":prefix": &types.AttributeValueMemberS{Value: skPrefixScan},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(int32(limit)),
	}

	out, err := c.api.Query(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("repository: RecentScans query: %w", err)
	}

	events := make([]domain.ScanEvent, 0, len(out.Items))
	for _, item := range out.Items {
		ev, err := itemToEvent(item)
		if err != nil {
			return nil, fmt.Errorf("repository: RecentScans unmarshal: %w", err)
		}
		events = append(events, ev)
	}
	return events, nil
}

// DailyStats returns the counters for a UTC day. A day without scans yields
// zero counts.
func (c *Client) DailyStats(ctx context.Context, day time.Time) (domain.ScanStats, error) {
	stats := domain.ScanStats{
		Day:      day.UTC().Format(dayLayout),
		ByMode:   map[string]int{},
		ByObject: map[string]int{},
	}

	out, err := c.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(c.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: dayPK(day)},
			"SK": &types.AttributeValueMemberS{Value: skStats},
		},
	})
	if err != nil {
		return domain.ScanStats{}, fmt.Errorf("repository: DailyStats get item: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return stats, nil
	}

	for key := range out.Item {
		switch {
		case key == "total":
			n, err := intAttr(out.Item, key)
			if err != nil {
				return domain.ScanStats{}, fmt.Errorf("repository: DailyStats decode: %w", err)
			}
			stats.Total = n
		case strings.HasPrefix(key, attrModePrefix), strings.HasPrefix(key, attrObjectPrefix):
			n, err := intAttr(out.Item, key)
			if err != nil {
				return domain.ScanStats{}, fmt.Errorf("repository: DailyStats decode: %w", err)
			}
			if name, ok := strings.CutPrefix(key, attrModePrefix); ok {
				stats.ByMode[name] = n
			} else {
				stats.ByObject[strings.TrimPrefix(key, attrObjectPrefix)] = n
			}
		}
	}
	return stats, nil
}

// ParseDay parses a YYYY-MM-DD day, defaulting to today (UTC) when blank.
func ParseDay(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return now().UTC(), nil
	}
	t, err := time.Parse(dayLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("repository: parse day %q: %w", s, err)
	}
	return t, nil
}

func eventItem(ev domain.ScanEvent) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK":         &types.AttributeValueMemberS{Value: ev.PK},
		"SK":         &types.AttributeValueMemberS{Value: ev.SK},
		"eventId":    &types.AttributeValueMemberS{Value: ev.EventID},
		"objectId":   &types.AttributeValueMemberS{Value: ev.ObjectID},
		"confidence": &types.AttributeValueMemberN{Value: strconv.FormatFloat(ev.Confidence, 'f', -1, 64)},
		"mode":       &types.AttributeValueMemberS{Value: ev.Mode},
		"provider":   &types.AttributeValueMemberS{Value: ev.Provider},
		"createdAt":  &types.AttributeValueMemberS{Value: ev.CreatedAt.UTC().Format(time.RFC3339Nano)},
		"ttl":        &types.AttributeValueMemberN{Value: strconv.FormatInt(ev.TTL, 10)},
	}
}

// itemToEvent converts a DynamoDB attribute map to a ScanEvent.
func itemToEvent(item map[string]types.AttributeValue) (domain.ScanEvent, error) {
	pk, err := strAttr(item, "PK")
	if err != nil {
		return domain.ScanEvent{}, err
	}
	sk, err := strAttr(item, "SK")
	if err != nil {
		return domain.ScanEvent{}, err
	}
	mode, err := strAttr(item, "mode")
	if err != nil {
		return domain.ScanEvent{}, err
	}
	createdRaw, err := strAttr(item, "createdAt")
	if err != nil {
		return domain.ScanEvent{}, err
	}
	created, err := time.Parse(time.RFC3339Nano, createdRaw)
	if err != nil {
		return domain.ScanEvent{}, fmt.Errorf("repository: parse createdAt: %w", err)
	}
	eventID, _ := strAttr(item, "eventId")   // allow empty
	objectID, _ := strAttr(item, "objectId") // allow empty
	provider, _ := strAttr(item, "provider") // allow empty
	confidence, _ := floatAttr(item, "confidence")

	return domain.ScanEvent{
		PK:         pk,
		SK:         sk,
		EventID:    eventID,
		ObjectID:   objectID,
		Confidence: confidence,
		Mode:       mode,
		Provider:   provider,
		CreatedAt:  created,
	}, nil
}

func strAttr(item map[string]types.AttributeValue, key string) (string, error) {
	v, ok := item[key]
	if !ok {
		return "", fmt.Errorf("repository: missing attribute %q", key)
	}
	s, ok := v.(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("repository: attribute %q is not a string", key)
	}
	return s.Value, nil
}

func numAttr(item map[string]types.AttributeValue, key string) (string, error) {
	v, ok := item[key]
	if !ok {
		return "", fmt.Errorf("repository: missing attribute %q", key)
	}
	n, ok := v.(*types.AttributeValueMemberN)
	if !ok {
		return "", fmt.Errorf("repository: attribute %q is not a number", key)
	}
	return n.Value, nil
}

func intAttr(item map[string]types.AttributeValue, key string) (int, error) {
	raw, err := numAttr(item, key)
	if err != nil {
		return 0, err
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("repository: parse attribute %q: %w", key, err)
	}
	return parsed, nil
}

func floatAttr(item map[string]types.AttributeValue, key string) (float64, error) {
	raw, err := numAttr(item, key)
	if err != nil {
		return 0, err
	}
	parsed, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("repository: parse attribute %q: %w", key, err)
	}
	return parsed, nil
}
