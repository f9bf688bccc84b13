package domain

// Device groups entities in Home Assistant. The primary inverter and the AC meter
// are attached to the bridge through ViaDevice.
type Device struct {
	Id           string
	Name         string
	Version      string
	Model        string
	Manufacturer string
	ViaDevice    string
}

// GenericSensor is a read-only entity announced through HA discovery.
type GenericSensor struct {
	Device            Device
	Id                string
	SensorType        string
	Name              string
	UniqueId          string
	UnitOfMeasurement string
	StateClass        string // measurement, total_increasing
	DeviceClass       string // power, battery, voltage
	EntityCategory    string // diagnostic, config or empty
	EnabledByDefault  *bool
	Icon              string
}

// GenericSwitch is an operator toggle backed by a command topic.
type GenericSwitch struct {
	Device   Device
	Id       string
	Name     string
	UniqueId string
	Icon     string
}

// GenericInputNumber is an operator number backed by a command topic.
type GenericInputNumber struct {
	Device       Device
	Id           string
	Name         string
	UniqueId     string
	Icon         string
	Max          float64
	Min          float64
	Step         float64
	Mode         string // box or slider
	InitialValue float64
}
