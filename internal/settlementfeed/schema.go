package settlementfeed

import (
	cbigquery "cloud.google.com/go/bigquery"
)

// PartitionField is the column the settlements table is partitioned on.
const PartitionField = "occurred_at"

// Schema is the BigQuery layout matching SettlementRow.
func Schema() cbigquery.Schema {
	nullable := func(name string, typ cbigquery.FieldType) *cbigquery.FieldSchema {
		return &cbigquery.FieldSchema{Name: name, Type: typ}
	}
	required := func(name string, typ cbigquery.FieldType) *cbigquery.FieldSchema {
		return &cbigquery.FieldSchema{Name: name, Type: typ, Required: true}
	}
	return cbigquery.Schema{
		required("event_id", cbigquery.StringFieldType),
		required("event_type", cbigquery.StringFieldType),
		required(PartitionField, cbigquery.TimestampFieldType),
		nullable("session_id", cbigquery.StringFieldType),
		nullable("order_group_id", cbigquery.StringFieldType),
		nullable("order_id", cbigquery.StringFieldType),
		nullable("buyer_user_id", cbigquery.StringFieldType),
		nullable("seller_id", cbigquery.StringFieldType),
		nullable("provider", cbigquery.StringFieldType),
		nullable("reference", cbigquery.StringFieldType),
		nullable("payment_status", cbigquery.StringFieldType),
		required("amount_minor", cbigquery.IntegerFieldType),
		nullable("expected_minor", cbigquery.IntegerFieldType),
		nullable("refunded_minor", cbigquery.IntegerFieldType),
		required("currency", cbigquery.StringFieldType),
		required("review_required", cbigquery.BooleanFieldType),
		nullable("reason", cbigquery.StringFieldType),
		nullable("payload", cbigquery.JSONFieldType),
	}
}
