package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/rivet/engine/core"
	"github.com/spaghettifunk/rivet/engine/renderer"
	"github.com/spaghettifunk/rivet/engine/renderer/metadata"
)

type VulkanRendererConfig struct {
	/** @brief Byte budget of the per-frame staging arena. */
	StagingBudgetBytes uint64
	/** @brief Number of elements in the bindless texture array. */
	MaxBindlessSlots uint32
}

/**
 * @brief VulkanRenderer is the GPU half of the texture pipeline: it owns the
 * transfer command recording, the persistently mapped staging buffer and the
 * bindless descriptor table. Per-frame copies are recorded into a single-use
 * command buffer between BeginFrameTransfers and SubmitFrameTransfers.
 */
type VulkanRenderer struct {
	context  *VulkanContext
	staging  *VulkanStagingBuffer
	bindless *VulkanBindlessTable

	commandPool    vk.CommandPool
	transferBuffer *VulkanCommandBuffer

	// View written into retired slots. Captured when the fallback image is
	// bound to slot zero during initialization.
	fallbackView vk.ImageView
}

func NewVulkanRenderer(context *VulkanContext, config VulkanRendererConfig) (*VulkanRenderer, error) {
	if config.StagingBudgetBytes == 0 {
		return nil, fmt.Errorf("staging budget must be greater than zero")
	}
	if config.MaxBindlessSlots == 0 {
		return nil, fmt.Errorf("bindless slot count must be greater than zero")
	}

	vr := &VulkanRenderer{
		context: context,
	}

	poolCreateInfo := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: context.TransferQueueIndex,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateTransientBit),
	}
	var pPool vk.CommandPool
	if res := vk.CreateCommandPool(context.LogicalDevice, &poolCreateInfo, context.Allocator, &pPool); res != vk.Success {
		err := fmt.Errorf("failed to create transfer command pool")
		core.LogError(err.Error())
		return nil, err
	}
	vr.commandPool = pPool

	staging, err := NewStagingBuffer(context, config.StagingBudgetBytes)
	if err != nil {
		return nil, err
	}
	vr.staging = staging

	bindless, err := NewBindlessTable(context, config.MaxBindlessSlots)
	if err != nil {
		return nil, err
	}
	vr.bindless = bindless

	core.LogInfo("Vulkan texture backend created. Staging budget: %d bytes, bindless slots: %d",
		config.StagingBudgetBytes, config.MaxBindlessSlots)

	return vr, nil
}

func (vr *VulkanRenderer) Staging() renderer.StagingAllocator {
	return vr.staging
}

/**
 * Opens the single-use command buffer the current frame's texture copies
 * record into. Must precede any flush of pending uploads.
 */
func (vr *VulkanRenderer) BeginFrameTransfers() error {
	if vr.transferBuffer != nil {
		return fmt.Errorf("frame transfers already begun")
	}
	commandBuffer, err := AllocateAndBeginSingleUse(vr.context, vr.commandPool)
	if err != nil {
		return err
	}
	vr.transferBuffer = commandBuffer
	return nil
}

/**
 * Submits the frame's recorded copies to the transfer queue and waits for
 * them before returning. No-op when nothing was recorded.
 */
func (vr *VulkanRenderer) SubmitFrameTransfers() error {
	if vr.transferBuffer == nil {
		return nil
	}
	commandBuffer := vr.transferBuffer
	vr.transferBuffer = nil
	return commandBuffer.EndSingleUse(vr.context, vr.commandPool, vr.context.TransferQueue)
}

func (vr *VulkanRenderer) TextureCreate(blob *metadata.PixelBlob, regions []metadata.UploadRegion) (*metadata.TextureGPU, error) {
	if vr.transferBuffer == nil {
		return nil, fmt.Errorf("no transfer command buffer open for this frame")
	}

	image, err := vr.createSampledImage(blob.Width, blob.Height, uint32(len(blob.Layers)), blob.Format)
	if err != nil {
		return nil, err
	}

	if err := vr.recordUpload(vr.transferBuffer, image, regions); err != nil {
		image.ImageDestroy(vr.context)
		return nil, err
	}

	return &metadata.TextureGPU{
		Width:        blob.Width,
		Height:       blob.Height,
		Layers:       uint32(len(blob.Layers)),
		MipLevels:    1,
		Format:       blob.Format,
		InternalData: image,
	}, nil
}

func (vr *VulkanRenderer) TextureCreateImmediate(blob *metadata.PixelBlob) (*metadata.TextureGPU, error) {
	layout := metadata.BuildUploadLayout(blob.Width, blob.Height, blob.Format, uint32(len(blob.Layers)))

	// Private staging buffer so the preload path never competes with the
	// per-frame arena.
	staging, err := NewStagingBuffer(vr.context, layout.TotalSize)
	if err != nil {
		return nil, err
	}
	defer staging.Destroy(vr.context)

	regions := make([]metadata.UploadRegion, 0, len(blob.Layers))
	for layer, pixels := range blob.Layers {
		allocation, ok := staging.TryAllocate(layout.LayerSize)
		if !ok {
			return nil, fmt.Errorf("immediate staging buffer too small for layer %d", layer)
		}
		copy(allocation.Bytes, pixels)
		regions = append(regions, metadata.UploadRegion{
			StagingOffset: allocation.Offset,
			Layer:         uint32(layer),
		})
	}

	image, err := vr.createSampledImage(blob.Width, blob.Height, uint32(len(blob.Layers)), blob.Format)
	if err != nil {
		return nil, err
	}

	commandBuffer, err := AllocateAndBeginSingleUse(vr.context, vr.commandPool)
	if err != nil {
		image.ImageDestroy(vr.context)
		return nil, err
	}
	if err := vr.recordUploadFrom(commandBuffer, image, staging.Handle, regions); err != nil {
		commandBuffer.Free(vr.context, vr.commandPool)
		image.ImageDestroy(vr.context)
		return nil, err
	}
	if err := commandBuffer.EndSingleUse(vr.context, vr.commandPool, vr.context.TransferQueue); err != nil {
		image.ImageDestroy(vr.context)
		return nil, err
	}

	return &metadata.TextureGPU{
		Width:        blob.Width,
		Height:       blob.Height,
		Layers:       uint32(len(blob.Layers)),
		MipLevels:    1,
		Format:       blob.Format,
		InternalData: image,
	}, nil
}

func (vr *VulkanRenderer) TextureDestroy(gpu *metadata.TextureGPU) {
	if gpu == nil {
		return
	}
	image, ok := gpu.InternalData.(*VulkanImage)
	if !ok || image == nil {
		return
	}
	image.ImageDestroy(vr.context)
	gpu.InternalData = nil
}

func (vr *VulkanRenderer) RenderTargetCreate(spec metadata.RenderTargetSpec) (*metadata.RenderTargetGPU, error) {
	format, err := VulkanFormat(spec.Format)
	if err != nil {
		core.LogError(err.Error())
		return nil, err
	}

	usage := vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit)
	if spec.Sampled {
		usage |= vk.ImageUsageFlags(vk.ImageUsageSampledBit)
	}

	mipLevels := spec.MipLevels
	if mipLevels == 0 {
		mipLevels = 1
	}

	image, err := ImageCreate(vr.context, vk.ImageType2d, spec.Width, spec.Height, 1, mipLevels,
		format, vk.ImageTilingOptimal, usage,
		vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit),
		true, vk.ImageAspectFlags(vk.ImageAspectColorBit))
	if err != nil {
		return nil, err
	}

	return &metadata.RenderTargetGPU{
		InternalData: image,
	}, nil
}

func (vr *VulkanRenderer) RenderTargetDestroy(gpu *metadata.RenderTargetGPU) {
	if gpu == nil {
		return
	}
	image, ok := gpu.InternalData.(*VulkanImage)
	if !ok || image == nil {
		return
	}
	image.ImageDestroy(vr.context)
	gpu.InternalData = nil
}

func (vr *VulkanRenderer) WriteTextureSlot(slot uint32, gpu *metadata.TextureGPU) {
	image, ok := gpu.InternalData.(*VulkanImage)
	if !ok || image == nil {
		core.LogError("cannot bind slot %d: texture has no vulkan image", slot)
		return
	}
	if slot == 0 {
		// Slot zero holds the fallback image. Seed the entire array with it
		// so no element is ever left undefined.
		vr.fallbackView = image.View
		vr.bindless.WriteAllSlots(vr.context, image.View)
		return
	}
	vr.bindless.WriteSlot(vr.context, slot, image.View)
}

func (vr *VulkanRenderer) WriteRenderTargetSlot(slot uint32, gpu *metadata.RenderTargetGPU) {
	image, ok := gpu.InternalData.(*VulkanImage)
	if !ok || image == nil {
		core.LogError("cannot bind slot %d: render target has no vulkan image", slot)
		return
	}
	vr.bindless.WriteSlot(vr.context, slot, image.View)
}

func (vr *VulkanRenderer) WriteFallbackSlot(slot uint32) {
	if vr.fallbackView == nil {
		core.LogError("cannot retire slot %d: fallback view not initialized", slot)
		return
	}
	vr.bindless.WriteSlot(vr.context, slot, vr.fallbackView)
}

/**
 * Returns the descriptor set layout render pipelines bind against.
 */
func (vr *VulkanRenderer) BindlessLayout() vk.DescriptorSetLayout {
	return vr.bindless.Layout
}

func (vr *VulkanRenderer) BindlessSet() vk.DescriptorSet {
	return vr.bindless.Set
}

func (vr *VulkanRenderer) Shutdown() {
	vk.DeviceWaitIdle(vr.context.LogicalDevice)
	if vr.bindless != nil {
		vr.bindless.Destroy(vr.context)
		vr.bindless = nil
	}
	if vr.staging != nil {
		vr.staging.Destroy(vr.context)
		vr.staging = nil
	}
	if vr.commandPool != nil {
		vk.DestroyCommandPool(vr.context.LogicalDevice, vr.commandPool, vr.context.Allocator)
		vr.commandPool = nil
	}
}

func (vr *VulkanRenderer) createSampledImage(width, height, layers uint32, format metadata.TextureFormat) (*VulkanImage, error) {
	vkFormat, err := VulkanFormat(format)
	if err != nil {
		core.LogError(err.Error())
		return nil, err
	}
	return ImageCreate(vr.context, vk.ImageType2d, width, height, layers, 1,
		vkFormat, vk.ImageTilingOptimal,
		vk.ImageUsageFlags(vk.ImageUsageTransferDstBit|vk.ImageUsageSampledBit),
		vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit),
		true, vk.ImageAspectFlags(vk.ImageAspectColorBit))
}

func (vr *VulkanRenderer) recordUpload(commandBuffer *VulkanCommandBuffer, image *VulkanImage, regions []metadata.UploadRegion) error {
	return vr.recordUploadFrom(commandBuffer, image, vr.staging.Handle, regions)
}

func (vr *VulkanRenderer) recordUploadFrom(commandBuffer *VulkanCommandBuffer, image *VulkanImage, buffer vk.Buffer, regions []metadata.UploadRegion) error {
	if err := image.ImageTransitionLayout(vr.context, commandBuffer, vk.ImageLayoutUndefined, vk.ImageLayoutTransferDstOptimal); err != nil {
		return err
	}
	image.ImageCopyFromBuffer(commandBuffer, buffer, regions)
	return image.ImageTransitionLayout(vr.context, commandBuffer, vk.ImageLayoutTransferDstOptimal, vk.ImageLayoutShaderReadOnlyOptimal)
}
