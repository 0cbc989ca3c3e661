package vulkan

import (
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/rivet/engine/core"
	"github.com/spaghettifunk/rivet/engine/renderer"
	"github.com/spaghettifunk/rivet/engine/renderer/metadata"
)

/**
 * @brief Host-visible transfer-source buffer kept persistently mapped, with a
 * linear arena handing out aligned slices of the mapping. Reset once per frame
 * after the previous frame's copies have been consumed.
 */
type VulkanStagingBuffer struct {
	*renderer.StagingArena

	Handle vk.Buffer
	Memory vk.DeviceMemory
}

func NewStagingBuffer(context *VulkanContext, capacity uint64) (*VulkanStagingBuffer, error) {
	bufferCreateInfo := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(capacity),
		Usage:       vk.BufferUsageFlags(vk.BufferUsageTransferSrcBit),
		SharingMode: vk.SharingModeExclusive,
	}

	var pBuffer vk.Buffer
	if res := vk.CreateBuffer(context.LogicalDevice, &bufferCreateInfo, context.Allocator, &pBuffer); res != vk.Success {
		err := fmt.Errorf("failed to create staging buffer")
		core.LogError(err.Error())
		return nil, err
	}

	var memoryRequirements vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(context.LogicalDevice, pBuffer, &memoryRequirements)
	memoryRequirements.Deref()

	memoryFlags := vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit | vk.MemoryPropertyHostCoherentBit)
	memoryType := context.FindMemoryIndex(memoryRequirements.MemoryTypeBits, uint32(memoryFlags))
	if memoryType == -1 {
		vk.DestroyBuffer(context.LogicalDevice, pBuffer, context.Allocator)
		err := fmt.Errorf("no host-visible memory type for staging buffer")
		core.LogError(err.Error())
		return nil, err
	}

	memoryAllocateInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  memoryRequirements.Size,
		MemoryTypeIndex: uint32(memoryType),
	}
	var pMemory vk.DeviceMemory
	if res := vk.AllocateMemory(context.LogicalDevice, &memoryAllocateInfo, context.Allocator, &pMemory); res != vk.Success {
		vk.DestroyBuffer(context.LogicalDevice, pBuffer, context.Allocator)
		err := fmt.Errorf("failed to allocate staging buffer memory")
		core.LogError(err.Error())
		return nil, err
	}

	if res := vk.BindBufferMemory(context.LogicalDevice, pBuffer, pMemory, 0); res != vk.Success {
		vk.FreeMemory(context.LogicalDevice, pMemory, context.Allocator)
		vk.DestroyBuffer(context.LogicalDevice, pBuffer, context.Allocator)
		err := fmt.Errorf("failed to bind staging buffer memory")
		core.LogError(err.Error())
		return nil, err
	}

	// Map once; the mapping stays valid for the lifetime of the buffer.
	var pData unsafe.Pointer
	if res := vk.MapMemory(context.LogicalDevice, pMemory, 0, vk.DeviceSize(capacity), 0, &pData); res != vk.Success {
		vk.FreeMemory(context.LogicalDevice, pMemory, context.Allocator)
		vk.DestroyBuffer(context.LogicalDevice, pBuffer, context.Allocator)
		err := fmt.Errorf("failed to map staging buffer memory")
		core.LogError(err.Error())
		return nil, err
	}
	backing := unsafe.Slice((*byte)(pData), capacity)

	return &VulkanStagingBuffer{
		StagingArena: renderer.NewStagingArena(backing, metadata.CopyOffsetAlignment),
		Handle:       pBuffer,
		Memory:       pMemory,
	}, nil
}

func (vb *VulkanStagingBuffer) Destroy(context *VulkanContext) {
	if vb.Memory != nil {
		vk.UnmapMemory(context.LogicalDevice, vb.Memory)
		vk.FreeMemory(context.LogicalDevice, vb.Memory, context.Allocator)
		vb.Memory = nil
	}
	if vb.Handle != nil {
		vk.DestroyBuffer(context.LogicalDevice, vb.Handle, context.Allocator)
		vb.Handle = nil
	}
}
