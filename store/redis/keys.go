package redis

// Key prefixes for primary entity storage.
const (
	prefixEventType    = "hl:evtype:"
	prefixRegistration = "hl:reg:"
	prefixEvent        = "hl:evt:"
	prefixDelivery     = "hl:del:"
	prefixDLQ          = "hl:dlq:"
)

// Key prefixes for unique indexes.
const (
	uniqueEventTypeName = "hl:u:evtype:name:"
	uniqueEventIdem     = "hl:u:evt:idem:"
)

// Key prefixes for sorted set indexes.
const (
	zEventTypeAll   = "hl:z:evtype:all"
	zEventTypeGroup = "hl:z:evtype:group:" // + group name
	zRegOwner       = "hl:z:reg:owner:"    // + owner ID
	zEventAll       = "hl:z:evt:all"
	zEventOwner     = "hl:z:evt:owner:" // + owner ID
	zDeliveryReg    = "hl:z:del:reg:"   // + registration ID
	zDeliveryEvt    = "hl:z:del:evt:"   // + event ID
	zDeliveryDue    = "hl:z:del:due"    // score = NextRetryAt; non-terminal only
	zDLQAll         = "hl:z:dlq:all"
	zDLQOwner       = "hl:z:dlq:owner:" // + owner ID
	zDLQReg         = "hl:z:dlq:reg:"   // + registration ID
)

// entityKey returns the primary key for an entity.
func entityKey(prefix, id string) string {
	return prefix + id
}
