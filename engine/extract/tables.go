package extract

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/WessleyAI/manualkg/engine/domain"
	"github.com/WessleyAI/manualkg/engine/manual"
)

// Generic relation keys used directly by the extractors.
const (
	KeyTroubleshootingProblem = "HAS_TROUBLESHOOTING_PROBLEM"
	KeySolution               = "HAS_SOLUTION"
	KeyQuestion               = "HAS_QUESTION"
	KeyAnswer                 = "HAS_ANSWER"
	KeyProcedure              = "HAS_PROCEDURE"
	KeyNote                   = "HAS_NOTE"
	KeyCaution                = "HAS_CAUTION"
	KeyWarning                = "HAS_WARNING"
	KeyImage                  = "HAS_IMAGE"
	KeyOperationSection       = "HAS_OPERATION_SECTION"
	KeySubSection             = "HAS_SUB_SECTION"
	KeyFeature                = "HAS_FEATURE"
	KeyControlPanel           = "HAS_CONTROL_PANEL"
	KeyTableRow               = "HAS_TABLE_ROW"
	KeyChecklist              = "HAS_CHECKLIST"
	KeyChecklistItem          = "HAS_CHECKLIST_ITEM"
	KeySpecification          = "HAS_SPECIFICATION"
	KeyWeight                 = "HAS_WEIGHT"
	KeyDimension              = "HAS_DIMENSION"
	KeyPowerSupply            = "HAS_POWER_SUPPLY"
	KeyPowerConsumption       = "HAS_POWER_CONSUMPTION"
	KeyBatteryRuntime         = "HAS_BATTERY_RUNTIME"
	KeyWaterPressure          = "HAS_WATER_PRESSURE"
	KeyCapacity               = "HAS_CAPACITY"
	KeySpinSpeed              = "HAS_SPIN_SPEED"
	KeyNoiseLevel             = "HAS_NOISE_LEVEL"
	KeyVoltage                = "HAS_VOLTAGE"
	KeyFrequency              = "HAS_FREQUENCY"
)

// Coarse product types.
const (
	ProductWashingMachine = "washing machine"
	ProductDryer          = "dryer"
	ProductWasherDryer    = "washer dryer"
	ProductRefrigerator   = "refrigerator"
	ProductDishwasher     = "dishwasher"
	ProductAirConditioner = "air conditioner"
	ProductVacuumCleaner  = "vacuum cleaner"
	ProductStyler         = "styler"
)

// productNames maps cleaned manual product names to coarse product types.
var productNames = map[string]string{
	"washing machine":          ProductWashingMachine,
	"washer":                   ProductWashingMachine,
	"front load washer":        ProductWashingMachine,
	"top load washer":          ProductWashingMachine,
	"front loading washer":     ProductWashingMachine,
	"top loading washer":       ProductWashingMachine,
	"dryer":                    ProductDryer,
	"electric dryer":           ProductDryer,
	"gas dryer":                ProductDryer,
	"washer dryer":             ProductWasherDryer,
	"washer/dryer":             ProductWasherDryer,
	"washer dryer combo":       ProductWasherDryer,
	"washtower":                ProductWasherDryer,
	"washcombo":                ProductWasherDryer,
	"refrigerator":             ProductRefrigerator,
	"fridge":                   ProductRefrigerator,
	"french door refrigerator": ProductRefrigerator,
	"dishwasher":               ProductDishwasher,
	"air conditioner":          ProductAirConditioner,
	"vacuum cleaner":           ProductVacuumCleaner,
	"cordless vacuum":          ProductVacuumCleaner,
	"styler":                   ProductStyler,
}

// NormalizeProduct resolves a manual's product name to its coarse type.
func NormalizeProduct(name string) (string, error) {
	if p, ok := productNames[manual.CleanTitle(name)]; ok {
		return p, nil
	}
	return "", fmt.Errorf("%w: %q", domain.ErrUnknownProduct, name)
}

// DefaultEntityTypes is the entity product type set of a coarse product.
func DefaultEntityTypes(product string) []string {
	switch product {
	case ProductWashingMachine:
		return []string{"washer"}
	case ProductDryer:
		return []string{"dryer"}
	case ProductWasherDryer:
		return []string{"washer", "dryer"}
	default:
		return []string{product}
	}
}

// Troubleshooting sub-section titles, cleaned.
const (
	subBeforeService = "before calling for service"
	subDiagnose      = "diagnosing a fault"
	subCommon        = "washing machine/dryer common"
)

// internalSections are product-internal sub-section titles.
var internalSections = map[string][]string{
	"washer": {"washer"},
	"dryer":  {"dryer"},
	"common": {"washer", "dryer"},
}

// EntityTypesFor computes the entity product types of one troubleshooting
// sub-section.
func EntityTypesFor(product, subProductType, subSection string) []string {
	clean := manual.CleanTitle(subSection)
	if ents, ok := internalSections[clean]; ok {
		return append([]string(nil), ents...)
	}
	switch clean {
	case subCommon:
		return []string{"washer", "dryer"}
	case subDiagnose:
		if strings.EqualFold(strings.TrimSpace(subProductType), "kepler") {
			return []string{"washer", "dryer"}
		}
	}
	return DefaultEntityTypes(product)
}

type route int

const (
	routeNone route = iota
	routeProblems
	routeDiagnose
)

func routeFor(subSection string) route {
	clean := manual.CleanTitle(subSection)
	if _, ok := internalSections[clean]; ok {
		return routeProblems
	}
	switch clean {
	case subBeforeService, subCommon:
		return routeProblems
	case subDiagnose:
		return routeDiagnose
	}
	return routeNone
}

// sectionKeys maps cleaned troubleshooting section titles to generic keys.
var sectionKeys = map[string]string{
	"error messages":  "HAS_ERROR_CODE",
	"error codes":     "HAS_ERROR_CODE",
	"error code":      "HAS_ERROR_CODE",
	"noises":          "HAS_NOISE_PROBLEM",
	"noise":           "HAS_NOISE_PROBLEM",
	"operation":       "HAS_OPERATION_PROBLEM",
	"water":           "HAS_WATER_PROBLEM",
	"wi-fi":           "HAS_WIFI_PROBLEM",
	"wifi":            "HAS_WIFI_PROBLEM",
	"odor":            "HAS_ODOR_PROBLEM",
	"odors":           "HAS_ODOR_PROBLEM",
	"performance":     "HAS_PERFORMANCE_PROBLEM",
	"cooling":         "HAS_COOLING_PROBLEM",
	"ice":             "HAS_ICE_PROBLEM",
	"ice & water":     "HAS_ICE_PROBLEM",
	"drying":          "HAS_DRYING_PROBLEM",
	"washing":         "HAS_WASHING_PROBLEM",
	"door":            "HAS_DOOR_PROBLEM",
	"power":           "HAS_POWER_PROBLEM",
	"troubleshooting": KeyTroubleshootingProblem,
}

// problemOverrides reclassifies problems that manual authors filed under the
// wrong section. Keys are cleaned problem strings.
var problemOverrides = map[string]string{
	"rattling and clanking noise":    "HAS_NOISE_PROBLEM",
	"thumping noise":                 "HAS_NOISE_PROBLEM",
	"vibrating noise":                "HAS_NOISE_PROBLEM",
	"squeaking noise":                "HAS_NOISE_PROBLEM",
	"humming or gurgling noise":      "HAS_NOISE_PROBLEM",
	"clicking noise":                 "HAS_NOISE_PROBLEM",
	"water leaking":                  "HAS_WATER_PROBLEM",
	"water leaks":                    "HAS_WATER_PROBLEM",
	"water in the dispenser":         "HAS_WATER_PROBLEM",
	"musty or mildewy odor":          "HAS_ODOR_PROBLEM",
	"burning smell":                  "HAS_ODOR_PROBLEM",
	"clothes take too long to dry":   "HAS_DRYING_PROBLEM",
	"the appliance does not connect": "HAS_WIFI_PROBLEM",
	"wi-fi does not connect":         "HAS_WIFI_PROBLEM",
	"door will not open":             "HAS_DOOR_PROBLEM",
	"door does not unlock":           "HAS_DOOR_PROBLEM",
	"power failure":                  "HAS_POWER_PROBLEM",
}

// ProblemKey resolves the generic key for a troubleshooting problem. The
// problem-level override wins over the section mapping.
func ProblemKey(section, problem string) string {
	if k, ok := problemOverrides[manual.CleanTitle(trimPeriods(problem))]; ok {
		return k
	}
	if k, ok := sectionKeys[manual.CleanTitle(section)]; ok {
		return k
	}
	return KeyTroubleshootingProblem
}

var faqSections = map[string]bool{
	"faq": true, "faqs": true, "frequently asked questions": true,
}

func isFAQ(section string) bool { return faqSections[manual.CleanTitle(section)] }

// diagnoseKeys maps cleaned diagnose section titles to generic keys.
var diagnoseKeys = map[string]string{
	"diagnosing faults with lg thinq": "HAS_DIAGNOSE_THINQ",
	"diagnosing faults with a beep":   "HAS_DIAGNOSE_BEEP",
	"diagnosing faults with wifi":     "HAS_DIAGNOSE_WIFI",
	"diagnosing faults with wi-fi":    "HAS_DIAGNOSE_WIFI",
}

// subSectionKeys maps cleaned operation titles that carry their own
// relation. Anything else nests as HAS_SUB_SECTION.
var subSectionKeys = map[string]struct {
	key  string
	node domain.NodeType
}{
	"control panel":          {KeyControlPanel, domain.NodeControlPanel},
	"control panel features": {KeyControlPanel, domain.NodeControlPanel},
}

func subSectionRelation(title string) (string, domain.NodeType) {
	if r, ok := subSectionKeys[manual.CleanTitle(title)]; ok {
		return r.key, r.node
	}
	return KeySubSection, domain.NodeOperationSubSection
}

// specAliases maps cleaned specification keys to their common key.
var specAliases = map[string]string{
	"net weight":              KeyWeight,
	"weight":                  KeyWeight,
	"product weight":          KeyWeight,
	"unit weight":             KeyWeight,
	"dimension":               KeyDimension,
	"dimensions":              KeyDimension,
	"product dimensions":      KeyDimension,
	"dimensions (w x h x d)":  KeyDimension,
	"size":                    KeyDimension,
	"power supply":            KeyPowerSupply,
	"electrical requirements": KeyPowerSupply,
	"power requirements":      KeyPowerSupply,
	"power consumption":       KeyPowerConsumption,
	"rated power consumption": KeyPowerConsumption,
	"battery runtime":         KeyBatteryRuntime,
	"battery run time":        KeyBatteryRuntime,
	"run time":                KeyBatteryRuntime,
	"running time":            KeyBatteryRuntime,
	"operating time":          KeyBatteryRuntime,
	"water pressure":          KeyWaterPressure,
	"water supply pressure":   KeyWaterPressure,
	"capacity":                KeyCapacity,
	"wash capacity":           KeyCapacity,
	"drum capacity":           KeyCapacity,
	"total capacity":          KeyCapacity,
	"spin speed":              KeySpinSpeed,
	"max spin speed":          KeySpinSpeed,
	"max. spin speed":         KeySpinSpeed,
	"maximum spin speed":      KeySpinSpeed,
	"noise level":             KeyNoiseLevel,
	"voltage":                 KeyVoltage,
	"rated voltage":           KeyVoltage,
	"frequency":               KeyFrequency,
	"rated frequency":         KeyFrequency,
}

// qualifierRe matches one trailing "(...)" or "*" qualifier.
var qualifierRe = regexp.MustCompile(`\s*(\([^()]*\)|\*+)\s*$`)

// StripQualifiers removes trailing parenthetical and asterisk qualifiers.
func StripQualifiers(key string) string {
	k := strings.TrimSpace(key)
	for {
		next := qualifierRe.ReplaceAllString(k, "")
		if next == k || next == "" {
			return k
		}
		k = next
	}
}

// CommonSpecKey resolves a specification key. ok is false when the key has
// no alias and falls back to HAS_SPECIFICATION.
func CommonSpecKey(key string) (common string, ok bool) {
	if k, found := specAliases[manual.CleanTitle(key)]; found {
		return k, true
	}
	if k, found := specAliases[manual.CleanTitle(StripQualifiers(key))]; found {
		return k, true
	}
	return KeySpecification, false
}
