package postgresengine

var (
	BuildCreateBookQuery                = buildCreateBookQuery
	BuildLockInventoryQuery             = buildLockInventoryQuery
	BuildUpdateInventoryQuery           = buildUpdateInventoryQuery
	BuildSelectOpenLoansQuery           = buildSelectOpenLoansQuery
	BuildUpsertLoanQuery                = buildUpsertLoanQuery
	BuildSelectWaitingReservationsQuery = buildSelectWaitingReservationsQuery
	BuildUpsertReservationQuery         = buildUpsertReservationQuery
	BuildUpsertCatalogEntryQuery        = buildUpsertCatalogEntryQuery
	MapConstraintViolation              = mapConstraintViolation
)
