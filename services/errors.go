package services

import "errors"

var (
	// ErrStoreListing: das Listing des Object Stores ist fehlgeschlagen. Beendet den Lauf.
	ErrStoreListing = errors.New("store listing failed")
	// ErrHashing: ein Objekt konnte nicht gelesen oder gehasht werden. Das Objekt wird übersprungen.
	ErrHashing = errors.New("hashing failed")
	// ErrIngestionTransaction: Document/Work/Identifier konnten nicht angelegt werden, das Item wurde zurückgerollt.
	ErrIngestionTransaction = errors.New("ingestion transaction failed")
	// ErrRunInProgress: für denselben Bucket/Prefix läuft bereits ein Abgleich.
	ErrRunInProgress = errors.New("reconciliation already running")
)
