package scan

import "github.com/jmerrifield20/riskengine/internal/assets/model"

// ProbePort is a TCP port checked by the local probe.
type ProbePort struct {
	Port    int
	Service string
}

// LocalProbePorts are the well-known ports the local probe dials.
var LocalProbePorts = []ProbePort{
	{22, "ssh"},
	{80, "http"},
	{443, "https"},
	{3306, "mysql"},
	{5432, "postgresql"},
	{6379, "redis"},
	{27017, "mongodb"},
	{3389, "rdp"},
	{445, "smb"},
	{8080, "http-alt"},
	{8443, "https-alt"},
	{21, "ftp"},
}

// Host is one target of the subnet sweep.
type Host struct {
	Hostname string
	IP       string
	Type     string
	OS       string
	MAC      string
}

// quickSweepSize is how many hosts a quick scan visits.
const quickSweepSize = 6

// SweepHosts is the fixed sweep target list. Quick scans use the first six.
var SweepHosts = []Host{
	{"gateway-01", "192.168.1.1", model.AssetTypeNetwork, "Cisco IOS 17.3", "00:1A:2B:3C:4D:5E"},
	{"webserver-prod", "192.168.1.10", model.AssetTypeServer, "Ubuntu 22.04 LTS", "00:1A:2B:3C:4D:5F"},
	{"db-mysql-primary", "192.168.1.11", model.AssetTypeDatabase, "RHEL 9.2", "00:1A:2B:3C:4D:60"},
	{"dc-server-01", "192.168.1.5", model.AssetTypeServer, "Windows Server 2022", "00:1A:2B:3C:4D:61"},
	{"workstation-dev1", "192.168.1.50", model.AssetTypeEndpoint, "Windows 11 Pro", "00:1A:2B:3C:4D:62"},
	{"workstation-dev2", "192.168.1.51", model.AssetTypeEndpoint, "macOS 14.3", "00:1A:2B:3C:4D:63"},
	{"nas-storage-01", "192.168.1.20", model.AssetTypeServer, "Synology DSM 7.2", "00:1A:2B:3C:4D:64"},
	{"firewall-edge", "192.168.1.254", model.AssetTypeNetwork, "FortiOS 7.4.1", "00:1A:2B:3C:4D:65"},
	{"switch-core-01", "192.168.1.2", model.AssetTypeNetwork, "Juniper JunOS 22.4", "00:1A:2B:3C:4D:66"},
	{"iot-sensor-lab1", "192.168.1.100", model.AssetTypeIoT, "FreeRTOS 10.4", "00:1A:2B:3C:4D:67"},
	{"cloud-proxy-aws", "10.0.1.5", model.AssetTypeCloud, "Amazon Linux 2023", ""},
	{"backup-server-01", "192.168.1.30", model.AssetTypeServer, "Ubuntu 20.04 LTS", "00:1A:2B:3C:4D:68"},
}

func tcp(port int, service string) model.PortInfo {
	return model.PortInfo{Port: port, Service: service, State: model.PortStateOpen, Protocol: "tcp"}
}

// portProfiles are the ports reported for each swept device type.
var portProfiles = map[string][]model.PortInfo{
	model.AssetTypeServer:   {tcp(22, "ssh"), tcp(80, "http"), tcp(443, "https")},
	model.AssetTypeDatabase: {tcp(3306, "mysql"), tcp(22, "ssh")},
	model.AssetTypeNetwork: {
		tcp(22, "ssh"),
		{Port: 161, Service: "snmp", State: model.PortStateOpen, Protocol: "udp"},
		tcp(443, "https"),
	},
	model.AssetTypeEndpoint: {tcp(3389, "rdp"), tcp(445, "smb")},
	model.AssetTypeIoT:      {tcp(1883, "mqtt"), tcp(8080, "http-alt")},
	model.AssetTypeCloud:    {tcp(22, "ssh"), tcp(443, "https")},
}

// serviceProfiles are the services reported for each swept device type.
var serviceProfiles = map[string][]model.ServiceInfo{
	model.AssetTypeServer: {
		{Name: "nginx", Version: "1.24.0", Status: "running", PID: 1234},
		{Name: "sshd", Version: "OpenSSH 9.3", Status: "running", PID: 456},
		{Name: "node", Version: "22.0.0", Status: "running", PID: 5678},
	},
	model.AssetTypeDatabase: {
		{Name: "mysqld", Version: "8.0.35", Status: "running", PID: 2345},
		{Name: "sshd", Version: "OpenSSH 8.7", Status: "running", PID: 567},
	},
	model.AssetTypeNetwork: {
		{Name: "snmpd", Version: "5.9.3", Status: "running"},
		{Name: "sshd", Version: "Cisco SSH 2.0", Status: "running"},
	},
	model.AssetTypeEndpoint: {
		{Name: "svchost", Version: "Windows 11", Status: "running"},
		{Name: "defender", Version: "4.18.2", Status: "running"},
	},
	model.AssetTypeIoT: {
		{Name: "mosquitto", Version: "2.0.15", Status: "running"},
	},
	model.AssetTypeCloud: {
		{Name: "amazon-ssm-agent", Version: "3.2.582", Status: "running"},
		{Name: "nginx", Version: "1.24.0", Status: "running"},
	},
}

// profileFor returns copies of the port and service profiles for a type.
func profileFor(assetType string) ([]model.PortInfo, []model.ServiceInfo) {
	ports := append([]model.PortInfo(nil), portProfiles[assetType]...)
	services := append([]model.ServiceInfo(nil), serviceProfiles[assetType]...)
	return ports, services
}
