package dynamodb

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	ddb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	dbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// fakeClient is an in-memory DynamoDB good enough for the store: single HASH
// key tables, the two condition expressions the store sends, and paginated
// scans.
type fakeClient struct {
	mu       sync.Mutex
	tables   map[string]*fakeTable
	pageSize int

	puts       int
	batchCalls int
	// unprocessOnce makes the first BatchWriteItem hand back its last request.
	unprocessOnce bool
}

type fakeTable struct {
	key   string
	order []string
	items map[string]map[string]dbtypes.AttributeValue
}

func newFakeClient() *fakeClient {
	return &fakeClient{tables: make(map[string]*fakeTable), pageSize: 3}
}

func attrID(av dbtypes.AttributeValue) string {
	switch a := av.(type) {
	case *dbtypes.AttributeValueMemberN:
		return "N" + a.Value
	case *dbtypes.AttributeValueMemberS:
		return "S" + a.Value
	case *dbtypes.AttributeValueMemberB:
		return "B" + string(a.Value)
	}
	return ""
}

func notFound(name string) error {
	return &dbtypes.ResourceNotFoundException{Message: aws.String("table not found: " + name)}
}

func (f *fakeClient) table(name *string) (*fakeTable, error) {
	t, ok := f.tables[aws.ToString(name)]
	if !ok {
		return nil, notFound(aws.ToString(name))
	}
	return t, nil
}

func (f *fakeClient) CreateTable(ctx context.Context, in *ddb.CreateTableInput, _ ...func(*ddb.Options)) (*ddb.CreateTableOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	name := aws.ToString(in.TableName)
	if _, ok := f.tables[name]; ok {
		return nil, &dbtypes.ResourceInUseException{Message: aws.String("table exists")}
	}
	f.tables[name] = &fakeTable{
		key:   aws.ToString(in.KeySchema[0].AttributeName),
		items: make(map[string]map[string]dbtypes.AttributeValue),
	}
	return &ddb.CreateTableOutput{}, nil
}

func (f *fakeClient) DescribeTable(ctx context.Context, in *ddb.DescribeTableInput, _ ...func(*ddb.Options)) (*ddb.DescribeTableOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, err := f.table(in.TableName)
	if err != nil {
		return nil, err
	}
	return &ddb.DescribeTableOutput{Table: &dbtypes.TableDescription{
		TableName:   in.TableName,
		TableStatus: dbtypes.TableStatusActive,
		KeySchema: []dbtypes.KeySchemaElement{
			{AttributeName: aws.String(t.key), KeyType: dbtypes.KeyTypeHash},
		},
	}}, nil
}

func (f *fakeClient) ListTables(ctx context.Context, in *ddb.ListTablesInput, _ ...func(*ddb.Options)) (*ddb.ListTablesOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := &ddb.ListTablesOutput{}
	for name := range f.tables {
		out.TableNames = append(out.TableNames, name)
	}
	return out, nil
}

func (f *fakeClient) PutItem(ctx context.Context, in *ddb.PutItemInput, _ ...func(*ddb.Options)) (*ddb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.puts++
	t, err := f.table(in.TableName)
	if err != nil {
		return nil, err
	}
	keyAttr, ok := in.Item[t.key]
	if !ok {
		return nil, fmt.Errorf("ValidationException: missing key %s", t.key)
	}
	id := attrID(keyAttr)
	_, exists := t.items[id]
	switch cond := aws.ToString(in.ConditionExpression); {
	case strings.HasPrefix(cond, "attribute_not_exists") && exists,
		strings.HasPrefix(cond, "attribute_exists") && !exists:
		return nil, &dbtypes.ConditionalCheckFailedException{Message: aws.String("condition failed")}
	}
	if !exists {
		t.order = append(t.order, id)
	}
	t.items[id] = in.Item
	return &ddb.PutItemOutput{}, nil
}

func (f *fakeClient) GetItem(ctx context.Context, in *ddb.GetItemInput, _ ...func(*ddb.Options)) (*ddb.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, err := f.table(in.TableName)
	if err != nil {
		return nil, err
	}
	return &ddb.GetItemOutput{Item: t.items[attrID(in.Key[t.key])]}, nil
}

func (f *fakeClient) remove(t *fakeTable, id string) {
	if _, ok := t.items[id]; !ok {
		return
	}
	delete(t.items, id)
	for i, o := range t.order {
		if o == id {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
}

func (f *fakeClient) DeleteItem(ctx context.Context, in *ddb.DeleteItemInput, _ ...func(*ddb.Options)) (*ddb.DeleteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, err := f.table(in.TableName)
	if err != nil {
		return nil, err
	}
	f.remove(t, attrID(in.Key[t.key]))
	return &ddb.DeleteItemOutput{}, nil
}

func (f *fakeClient) BatchWriteItem(ctx context.Context, in *ddb.BatchWriteItemInput, _ ...func(*ddb.Options)) (*ddb.BatchWriteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batchCalls++
	out := &ddb.BatchWriteItemOutput{UnprocessedItems: map[string][]dbtypes.WriteRequest{}}
	for name, reqs := range in.RequestItems {
		if len(reqs) > 25 {
			return nil, fmt.Errorf("ValidationException: too many items in batch")
		}
		t, err := f.table(aws.String(name))
		if err != nil {
			return nil, err
		}
		if f.unprocessOnce && len(reqs) > 0 {
			f.unprocessOnce = false
			out.UnprocessedItems[name] = reqs[len(reqs)-1:]
			reqs = reqs[:len(reqs)-1]
		}
		for _, r := range reqs {
			f.remove(t, attrID(r.DeleteRequest.Key[t.key]))
		}
	}
	return out, nil
}

func (f *fakeClient) Scan(ctx context.Context, in *ddb.ScanInput, _ ...func(*ddb.Options)) (*ddb.ScanOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, err := f.table(in.TableName)
	if err != nil {
		return nil, err
	}
	start := 0
	if in.ExclusiveStartKey != nil {
		n, _ := strconv.Atoi(in.ExclusiveStartKey["_pos"].(*dbtypes.AttributeValueMemberN).Value)
		start = n
	}
	end := min(start+f.pageSize, len(t.order))
	out := &ddb.ScanOutput{}
	for _, id := range t.order[start:end] {
		out.Items = append(out.Items, t.items[id])
	}
	if end < len(t.order) {
		out.LastEvaluatedKey = map[string]dbtypes.AttributeValue{
			"_pos": &dbtypes.AttributeValueMemberN{Value: strconv.Itoa(end)},
		}
	}
	return out, nil
}

var _ Client = (*fakeClient)(nil)
