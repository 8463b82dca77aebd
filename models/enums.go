package models

// TruckType matches the single-letter codes NAV uses on the shared schema:
// V = volteo (dump), R = rastra (flatbed trailer), P = pipa (tanker).
type TruckType string

const (
	TruckTypeDump    TruckType = "V"
	TruckTypeFlatbed TruckType = "R"
	TruckTypeTanker  TruckType = "P"
)

func IsValidTruckType(t TruckType) bool {
	switch t {
	case TruckTypeDump, TruckTypeFlatbed, TruckTypeTanker:
		return true
	}
	return false
}

type OperationType string

const (
	OperationTypeLoad      OperationType = "C"
	OperationTypeDischarge OperationType = "D"
)

type LoadType string

const (
	LoadTypeBulk  LoadType = "G"
	LoadTypeSacks LoadType = "S"
)

type AttachmentType string

const (
	AttachmentTypePrecheckDriver AttachmentType = "P"
	AttachmentTypeOther          AttachmentType = "O"
)

// Queue slot lifecycle.
type QueueSlotStatus string

const (
	QueueSlotWaiting QueueSlotStatus = "waiting_to_send"
	QueueSlotSent    QueueSlotStatus = "sent"
)

// Predefined status codes. The catalog rows carry display names; these
// constants are the codes business rules key on.
const (
	StatusInTransit     = 1
	StatusPrechecked    = 2
	StatusAuthorized    = 3
	StatusSummoned      = 4
	StatusEntryGate     = 5
	StatusWeighIn       = 6
	StatusLoading       = 7
	StatusWeighOut      = 8
	StatusSealing       = 9
	StatusExitGate      = 10
	StatusDeparted      = 11
	StatusReceiptIssued = 12
	StatusInconsistency = 13
	StatusCancelled     = 14
	StatusCooling       = 15
)

// System event log reasons.
type SysLogType string

const (
	SysLogUnknownShipment      SysLogType = "NAV_UNKNOWN_SHIPMENT"
	SysLogUnknownStatus        SysLogType = "NAV_UNKNOWN_STATUS"
	SysLogOutOfBandStatus      SysLogType = "OUT_OF_BAND_STATUS"
	SysLogLeveransUpdateFailed SysLogType = "LEVERANS_STATUS_UPDATE_FAILED"
)
