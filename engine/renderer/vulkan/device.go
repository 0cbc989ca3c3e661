package vulkan

import (
	"fmt"
	"runtime"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/rivet/engine/core"
)

/**
 * Creates the instance, picks a physical device with a transfer-capable
 * queue family and builds the logical device around it. The texture pipeline
 * needs no surface, so no windowing extensions are requested.
 */
func NewVulkanContext(appName string) (*VulkanContext, error) {
	if err := vk.Init(); err != nil {
		core.LogFatal("failed to initialize vk: %s", err)
		return nil, err
	}

	context := &VulkanContext{
		// TODO: custom allocator.
		Allocator: nil,
	}

	appInfo := &vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		ApiVersion:         uint32(vk.MakeVersion(1, 2, 0)),
		ApplicationVersion: uint32(vk.MakeVersion(1, 0, 0)),
		PApplicationName:   VulkanSafeString(appName),
		PEngineName:        VulkanSafeString("Rivet Engine"),
	}

	createInfo := vk.InstanceCreateInfo{
		SType:            vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: appInfo,
	}

	requiredExtensions := []string{}
	if runtime.GOOS == "darwin" {
		requiredExtensions = append(requiredExtensions,
			"VK_KHR_portability_enumeration",
			"VK_KHR_get_physical_device_properties2",
		)
		createInfo.Flags |= 1
	}
	createInfo.EnabledExtensionCount = uint32(len(requiredExtensions))
	createInfo.PpEnabledExtensionNames = VulkanSafeStrings(requiredExtensions)

	if res := vk.CreateInstance(&createInfo, context.Allocator, &context.Instance); res != vk.Success {
		err := fmt.Errorf("failed in creating the Vulkan Instance with error `%s`", VulkanResultString(res))
		core.LogError(err.Error())
		return nil, err
	}
	if err := vk.InitInstance(context.Instance); err != nil {
		core.LogError(err.Error())
		return nil, err
	}
	core.LogInfo("Vulkan Instance created.")

	if err := selectPhysicalDevice(context); err != nil {
		return nil, err
	}

	if err := createLogicalDevice(context); err != nil {
		return nil, err
	}

	return context, nil
}

func selectPhysicalDevice(context *VulkanContext) error {
	var physicalDeviceCount uint32
	if res := vk.EnumeratePhysicalDevices(context.Instance, &physicalDeviceCount, nil); res != vk.Success {
		return fmt.Errorf("failed to enumerate physical devices")
	}
	if physicalDeviceCount == 0 {
		err := fmt.Errorf("no devices which support Vulkan were found")
		core.LogError(err.Error())
		return err
	}

	physicalDevices := make([]vk.PhysicalDevice, physicalDeviceCount)
	if res := vk.EnumeratePhysicalDevices(context.Instance, &physicalDeviceCount, physicalDevices); res != vk.Success {
		return fmt.Errorf("failed to enumerate physical devices")
	}

	for _, device := range physicalDevices {
		queueIndex, ok := findTransferQueueFamily(device)
		if !ok {
			continue
		}

		var properties vk.PhysicalDeviceProperties
		vk.GetPhysicalDeviceProperties(device, &properties)
		properties.Deref()

		context.PhysicalDevice = device
		context.TransferQueueIndex = queueIndex
		core.LogInfo("Selected device: '%s'.", vk.ToString(properties.DeviceName[:]))
		return nil
	}

	err := fmt.Errorf("no device with a transfer-capable queue family was found")
	core.LogError(err.Error())
	return err
}

// findTransferQueueFamily prefers a dedicated transfer family so texture
// uploads stay off the graphics queue, falling back to any family that can
// transfer.
func findTransferQueueFamily(device vk.PhysicalDevice) (uint32, bool) {
	var familyCount uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(device, &familyCount, nil)
	families := make([]vk.QueueFamilyProperties, familyCount)
	vk.GetPhysicalDeviceQueueFamilyProperties(device, &familyCount, families)

	fallback := uint32(0)
	fallbackFound := false
	for i := range families {
		families[i].Deref()
		flags := families[i].QueueFlags
		if flags&vk.QueueFlags(vk.QueueTransferBit) == 0 && flags&vk.QueueFlags(vk.QueueGraphicsBit) == 0 {
			continue
		}
		if flags&vk.QueueFlags(vk.QueueGraphicsBit) == 0 && flags&vk.QueueFlags(vk.QueueComputeBit) == 0 {
			// Dedicated transfer family.
			return uint32(i), true
		}
		if !fallbackFound {
			fallback = uint32(i)
			fallbackFound = true
		}
	}
	return fallback, fallbackFound
}

func createLogicalDevice(context *VulkanContext) error {
	core.LogInfo("Creating logical device...")

	queuePriority := float32(1.0)
	queueCreateInfo := vk.DeviceQueueCreateInfo{
		SType:            vk.StructureTypeDeviceQueueCreateInfo,
		QueueFamilyIndex: context.TransferQueueIndex,
		QueueCount:       1,
		PQueuePriorities: []float32{queuePriority},
	}

	deviceFeatures := vk.PhysicalDeviceFeatures{}

	portabilityRequired := false
	var availableExtensionCount uint32
	if res := vk.EnumerateDeviceExtensionProperties(context.PhysicalDevice, "", &availableExtensionCount, nil); res != vk.Success {
		err := fmt.Errorf("error in EnumerateDeviceExtensionProperties")
		core.LogError(err.Error())
		return err
	}
	if availableExtensionCount != 0 {
		availableExtensions := make([]vk.ExtensionProperties, availableExtensionCount)
		if res := vk.EnumerateDeviceExtensionProperties(context.PhysicalDevice, "", &availableExtensionCount, availableExtensions); res != vk.Success {
			err := fmt.Errorf("error in EnumerateDeviceExtensionProperties")
			core.LogError(err.Error())
			return err
		}
		for i := range availableExtensions {
			availableExtensions[i].Deref()
			if string(availableExtensions[i].ExtensionName[:len("VK_KHR_portability_subset")]) == "VK_KHR_portability_subset" {
				core.LogInfo("Adding required extension 'VK_KHR_portability_subset'.")
				portabilityRequired = true
				break
			}
		}
	}

	extensionNames := []string{}
	if portabilityRequired {
		extensionNames = append(extensionNames, "VK_KHR_portability_subset")
	}

	deviceCreateInfo := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    1,
		PQueueCreateInfos:       []vk.DeviceQueueCreateInfo{queueCreateInfo},
		PEnabledFeatures:        []vk.PhysicalDeviceFeatures{deviceFeatures},
		EnabledExtensionCount:   uint32(len(extensionNames)),
		PpEnabledExtensionNames: VulkanSafeStrings(extensionNames),
	}

	if res := vk.CreateDevice(context.PhysicalDevice, &deviceCreateInfo, context.Allocator, &context.LogicalDevice); res != vk.Success {
		err := fmt.Errorf("failed to create logical device with error `%s`", VulkanResultString(res))
		core.LogError(err.Error())
		return err
	}
	core.LogInfo("Logical device created.")

	vk.GetDeviceQueue(context.LogicalDevice, context.TransferQueueIndex, 0, &context.TransferQueue)
	core.LogInfo("Transfer queue obtained.")

	return nil
}

func (vc *VulkanContext) Destroy() {
	vc.TransferQueue = nil
	if vc.LogicalDevice != nil {
		vk.DestroyDevice(vc.LogicalDevice, vc.Allocator)
		vc.LogicalDevice = nil
	}
	vc.PhysicalDevice = nil
	if vc.Instance != nil {
		vk.DestroyInstance(vc.Instance, vc.Allocator)
		vc.Instance = nil
	}
}
