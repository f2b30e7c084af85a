package diag

import (
	"fmt"
)

type Code uint16

const (
	// Неизвестная ошибка - на первое время
	UnknownCode Code = 0

	// Capability registry (setup phase)
	RegInfo                   Code = 1000
	RegMissingCloneCapability Code = 1001
	RegFrozen                 Code = 1002

	// Schema validation (definition time)
	SchemaInfo              Code = 2000
	SchemaDuplicateLifetime Code = 2001
	SchemaMissingCapability Code = 2002
	SchemaUndefinedLifetime Code = 2003
	SchemaUnusedLifetime    Code = 2004
	SchemaDuplicateField    Code = 2005
	SchemaEmptyStruct       Code = 2006

	// Construction (instance creation site)
	CtorCapabilityNotRegistered Code = 3001
	CtorBorrowOriginMismatch    Code = 3002
	CtorValueArityMismatch      Code = 3003

	// Borrow operations (runtime-checked mode)
	BorrowAlreadyBorrowed Code = 4001
	BorrowExclusiveHeld   Code = 4002
	BorrowConfigDisabled  Code = 4003
	BorrowConsumed        Code = 4004

	// Manifest / IO
	ManInfo                  Code = 5000
	ManLoadError             Code = 5001
	ManUnknownCapabilityKind Code = 5002
	ManDuplicateStruct       Code = 5003
	ManBadLifetimeName       Code = 5004
	ManMissingField          Code = 5005

	// Fatal engine defects; never recovered locally
	FatalInvariant Code = 9001
)

var ( // todo расширить описания и использовать как notes
	codeDescription = map[Code]string{
		UnknownCode:               "Unknown error",
		RegInfo:                   "Registry information",
		RegMissingCloneCapability: "Cloneable capability requires a registered clone operation",
		RegFrozen:                 "Registration attempted after the setup phase ended",

		SchemaInfo:              "Schema information",
		SchemaDuplicateLifetime: "Lifetime name is already bound by an earlier field",
		SchemaMissingCapability: "Binding field's type has no stable-deref capability",
		SchemaUndefinedLifetime: "Lifetime is used before any field binds it",
		SchemaUnusedLifetime:    "Lifetime is bound but never used",
		SchemaDuplicateField:    "Duplicate field name in struct",
		SchemaEmptyStruct:       "Struct has no fields",

		CtorCapabilityNotRegistered: "Capability no longer registered for binding field's type",
		CtorBorrowOriginMismatch:    "Provided borrow does not derive from a co-located base field",
		CtorValueArityMismatch:      "Field value count does not match schema",

		BorrowAlreadyBorrowed: "Field is already borrowed",
		BorrowExclusiveHeld:   "Exclusive borrow is held on field",
		BorrowConfigDisabled:  "Exclusive borrows are disabled by configuration",
		BorrowConsumed:        "Instance field was already consumed",

		ManInfo:                  "Manifest information",
		ManLoadError:             "Manifest load error",
		ManUnknownCapabilityKind: "Unknown capability kind in manifest",
		ManDuplicateStruct:       "Duplicate struct name in manifest",
		ManBadLifetimeName:       "Lifetime name must start with a quote",
		ManMissingField:          "Manifest entry is missing a required field",

		FatalInvariant: "Internal invariant violation",
	}
)

func (c Code) ID() string {
	switch ic := int(c); {
	case ic >= 1000 && ic < 2000:
		return fmt.Sprintf("REG%04d", ic)
	case ic >= 2000 && ic < 3000:
		return fmt.Sprintf("SCH%04d", ic)
	case ic >= 3000 && ic < 4000:
		return fmt.Sprintf("CON%04d", ic)
	case ic >= 4000 && ic < 5000:
		return fmt.Sprintf("BRW%04d", ic)
	case ic >= 5000 && ic < 6000:
		return fmt.Sprintf("MAN%04d", ic)
	case ic >= 9000 && ic < 10000:
		return fmt.Sprintf("FTL%04d", ic)
	}
	return "E0000"
}

func (c Code) Title() string {
	desc, ok := codeDescription[c]
	if !ok {
		return codeDescription[Code(0)]
	}
	return desc
}

func (c Code) String() string {
	return fmt.Sprintf("[%s]: %s", c.ID(), c.Title())
}
