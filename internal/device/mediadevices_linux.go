package device

// Registers V4L2 camera drivers with the mediadevices driver manager.
import _ "github.com/pion/mediadevices/pkg/driver/camera"
