package config

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/shirou/gopsutil/v3/host"
)

// Platform is a conda subdir name such as linux-64 or osx-arm64.
type Platform string

const (
	NoArch        Platform = "noarch"
	Linux32       Platform = "linux-32"
	Linux64       Platform = "linux-64"
	LinuxAarch64  Platform = "linux-aarch64"
	LinuxArmV6l   Platform = "linux-armv6l"
	LinuxArmV7l   Platform = "linux-armv7l"
	LinuxPpc64le  Platform = "linux-ppc64le"
	LinuxPpc64    Platform = "linux-ppc64"
	LinuxPpc      Platform = "linux-ppc"
	LinuxS390X    Platform = "linux-s390x"
	LinuxRiscv32  Platform = "linux-riscv32"
	LinuxRiscv64  Platform = "linux-riscv64"
	FreeBsd64     Platform = "freebsd-64"
	Osx64         Platform = "osx-64"
	OsxArm64      Platform = "osx-arm64"
	Win32         Platform = "win-32"
	Win64         Platform = "win-64"
	WinArm64      Platform = "win-arm64"
	EmscriptenW32 Platform = "emscripten-wasm32"
	WasiW32       Platform = "wasi-wasm32"
	ZosZ          Platform = "zos-z"
)

var knownPlatforms = []Platform{
	NoArch, Linux32, Linux64, LinuxAarch64, LinuxArmV6l, LinuxArmV7l,
	LinuxPpc64le, LinuxPpc64, LinuxPpc, LinuxS390X, LinuxRiscv32, LinuxRiscv64,
	FreeBsd64, Osx64, OsxArm64, Win32, Win64, WinArm64,
	EmscriptenW32, WasiW32, ZosZ,
}

// ParsePlatform validates s against the list of known conda platforms.
func ParsePlatform(s string) (Platform, error) {
	s = strings.ToLower(strings.TrimSpace(s))

	for _, p := range knownPlatforms {
		if string(p) == s {
			return p, nil
		}
	}

	return "", fmt.Errorf("unknown platform: %q", s)
}

func (p Platform) String() string {
	return string(p)
}

func (p Platform) IsWindows() bool {
	return strings.HasPrefix(string(p), "win-")
}

func (p Platform) IsOSX() bool {
	return strings.HasPrefix(string(p), "osx-")
}

func (p Platform) IsLinux() bool {
	return strings.HasPrefix(string(p), "linux-")
}

func (p Platform) IsUnix() bool {
	return p.IsLinux() || p.IsOSX() || p == FreeBsd64
}

// Current returns the platform of the running host. The architecture comes
// from the kernel rather than GOARCH so that an amd64 binary running under
// Rosetta still reports osx-arm64.
func Current() Platform {
	arch, err := host.KernelArch()
	if err != nil || arch == "" {
		arch = runtime.GOARCH
	}

	return platformFor(runtime.GOOS, arch)
}

func platformFor(goos, arch string) Platform {
	var a string

	switch arch {
	case "x86_64", "amd64":
		a = "64"
	case "i386", "i686", "386", "x86":
		a = "32"
	case "aarch64", "arm64":
		a = "arm64"
	case "armv6l":
		a = "armv6l"
	case "armv7l", "arm":
		a = "armv7l"
	default:
		a = arch
	}

	switch goos {
	case "darwin":
		if a == "arm64" {
			return OsxArm64
		}
		return Osx64
	case "windows":
		if a == "arm64" {
			return WinArm64
		}
		if a == "32" {
			return Win32
		}
		return Win64
	case "freebsd":
		return FreeBsd64
	default:
		if a == "arm64" {
			return LinuxAarch64
		}
		return Platform("linux-" + a)
	}
}
