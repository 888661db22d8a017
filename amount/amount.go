package amount

import (
	"errors"
	"math"
	"strconv"
)

const (
	NanoQFC = 1e9
)

type Unit int

const (
	MegaQFC  Unit = 6
	KiloQFC  Unit = 3
	QFC      Unit = 0
	MilliQFC Unit = -3
	MicroQFC Unit = -6
	NanoUnit Unit = -9
)

func (u Unit) String() string {
	switch u {
	case MegaQFC:
		return "MQFC"
	case KiloQFC:
		return "kQFC"
	case QFC:
		return "QFC"
	case MilliQFC:
		return "mQFC"
	case MicroQFC:
		return "μQFC"
	case NanoUnit:
		return "nQFC"
	default:
		return "1e" + strconv.FormatInt(int64(u), 10) + " QFC"
	}
}

// Amount represents the atomic unit in the QuantumFuse ledger.
// Each unit equals to 1e-9 of a QFC.
type Amount int64

func round(f float64) Amount {
	if f < 0 {
		return Amount(f - 0.5)
	}
	return Amount(f + 0.5)
}

func NewAmount(f float64) (Amount, error) {
	switch {
	case math.IsNaN(f),
		math.IsInf(f, 1),
		math.IsInf(f, -1):
		return 0, errors.New("invalid QFC amount")
	}

	return round(f * float64(NanoQFC)), nil
}

func FromString(str string) (Amount, error) {
	f, err := strconv.ParseFloat(str, 64)
	if err != nil {
		return 0, err
	}
	return NewAmount(f)
}

func (a Amount) ToUnit(u Unit) float64 {
	return float64(a) / math.Pow10(int(u+9))
}

func (a Amount) ToQFC() float64 {
	return a.ToUnit(QFC)
}

func (a Amount) ToNanoQFC() int64 {
	return int64(a)
}

func (a Amount) Format(u Unit) string {
	units := " " + u.String()
	formatted := strconv.FormatFloat(a.ToUnit(u), 'f', -int(u+9), 64)
	return formatted + units
}

// String is the equivalent of calling Format with QFC.
func (a Amount) String() string {
	return a.Format(QFC)
}

func (a Amount) MulF64(f float64) Amount {
	return round(float64(a) * f)
}
