package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/rivet/engine/core"
	"github.com/spaghettifunk/rivet/engine/renderer/metadata"
)

type VulkanImage struct {
	Handle      vk.Image
	Memory      vk.DeviceMemory
	View        vk.ImageView
	Width       uint32
	Height      uint32
	ArrayLayers uint32
	MipLevels   uint32
	Format      vk.Format
}

/**
 * Maps an engine texture format to the matching Vulkan format.
 */
func VulkanFormat(format metadata.TextureFormat) (vk.Format, error) {
	switch format {
	case metadata.FormatRGBA8:
		return vk.FormatR8g8b8a8Unorm, nil
	case metadata.FormatBGRA8:
		return vk.FormatB8g8r8a8Unorm, nil
	case metadata.FormatR8:
		return vk.FormatR8Unorm, nil
	case metadata.FormatBC1:
		return vk.FormatBc1RgbaUnormBlock, nil
	case metadata.FormatBC3:
		return vk.FormatBc3UnormBlock, nil
	case metadata.FormatBC7:
		return vk.FormatBc7UnormBlock, nil
	default:
		return vk.FormatUndefined, fmt.Errorf("no vulkan format for texture format %d", format)
	}
}

func ImageCreate(context *VulkanContext, imageType vk.ImageType, width, height uint32, arrayLayers, mipLevels uint32,
	format vk.Format, tiling vk.ImageTiling, usage vk.ImageUsageFlags, memoryFlags vk.MemoryPropertyFlags,
	createView bool, viewAspectFlags vk.ImageAspectFlags) (*VulkanImage, error) {

	image := &VulkanImage{
		Width:       width,
		Height:      height,
		ArrayLayers: arrayLayers,
		MipLevels:   mipLevels,
		Format:      format,
	}

	imageCreateInfo := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: imageType,
		Extent: vk.Extent3D{
			Width:  width,
			Height: height,
			Depth:  1,
		},
		MipLevels:     mipLevels,
		ArrayLayers:   arrayLayers,
		Format:        format,
		Tiling:        tiling,
		InitialLayout: vk.ImageLayoutUndefined,
		Usage:         usage,
		Samples:       vk.SampleCount1Bit,
		SharingMode:   vk.SharingModeExclusive,
	}

	var pImage vk.Image
	if res := vk.CreateImage(context.LogicalDevice, &imageCreateInfo, context.Allocator, &pImage); res != vk.Success {
		err := fmt.Errorf("failed to create image")
		core.LogError(err.Error())
		return nil, err
	}
	image.Handle = pImage

	// Query memory requirements.
	var memoryRequirements vk.MemoryRequirements
	vk.GetImageMemoryRequirements(context.LogicalDevice, image.Handle, &memoryRequirements)
	memoryRequirements.Deref()

	memoryType := context.FindMemoryIndex(memoryRequirements.MemoryTypeBits, uint32(memoryFlags))
	if memoryType == -1 {
		err := fmt.Errorf("required memory type not found. Image not valid")
		core.LogError(err.Error())
		return nil, err
	}

	// Allocate memory
	memoryAllocateInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  memoryRequirements.Size,
		MemoryTypeIndex: uint32(memoryType),
	}
	var pMemory vk.DeviceMemory
	if res := vk.AllocateMemory(context.LogicalDevice, &memoryAllocateInfo, context.Allocator, &pMemory); res != vk.Success {
		err := fmt.Errorf("failed to allocate memory for image")
		core.LogError(err.Error())
		return nil, err
	}
	image.Memory = pMemory

	// Bind the memory
	if res := vk.BindImageMemory(context.LogicalDevice, image.Handle, image.Memory, 0); res != vk.Success {
		err := fmt.Errorf("failed to bind image memory")
		core.LogError(err.Error())
		return nil, err
	}

	// Create view
	if createView {
		if err := image.ImageViewCreate(context, format, viewAspectFlags); err != nil {
			return nil, err
		}
	}

	return image, nil
}

func (vi *VulkanImage) ImageViewCreate(context *VulkanContext, format vk.Format, aspectFlags vk.ImageAspectFlags) error {
	viewType := vk.ImageViewType2d
	if vi.ArrayLayers > 1 {
		viewType = vk.ImageViewType2dArray
	}
	viewCreateInfo := vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    vi.Handle,
		ViewType: viewType,
		Format:   format,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask:     aspectFlags,
			BaseMipLevel:   0,
			LevelCount:     vi.MipLevels,
			BaseArrayLayer: 0,
			LayerCount:     vi.ArrayLayers,
		},
	}

	var pView vk.ImageView
	if res := vk.CreateImageView(context.LogicalDevice, &viewCreateInfo, context.Allocator, &pView); res != vk.Success {
		err := fmt.Errorf("failed to create image view")
		core.LogError(err.Error())
		return err
	}
	vi.View = pView
	return nil
}

/**
 * Transitions the image between layouts on the given transfer command buffer.
 */
func (vi *VulkanImage) ImageTransitionLayout(context *VulkanContext, commandBuffer *VulkanCommandBuffer, oldLayout, newLayout vk.ImageLayout) error {
	barrier := vk.ImageMemoryBarrier{
		SType:               vk.StructureTypeImageMemoryBarrier,
		OldLayout:           oldLayout,
		NewLayout:           newLayout,
		SrcQueueFamilyIndex: context.TransferQueueIndex,
		DstQueueFamilyIndex: context.TransferQueueIndex,
		Image:               vi.Handle,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask:     vk.ImageAspectFlags(vk.ImageAspectColorBit),
			BaseMipLevel:   0,
			LevelCount:     vi.MipLevels,
			BaseArrayLayer: 0,
			LayerCount:     vi.ArrayLayers,
		},
	}

	var sourceStage, destStage vk.PipelineStageFlags

	switch {
	case oldLayout == vk.ImageLayoutUndefined && newLayout == vk.ImageLayoutTransferDstOptimal:
		// Don't care about the old layout, transition to be optimal for the
		// underlying implementation.
		barrier.SrcAccessMask = 0
		barrier.DstAccessMask = vk.AccessFlags(vk.AccessTransferWriteBit)
		sourceStage = vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit)
		destStage = vk.PipelineStageFlags(vk.PipelineStageTransferBit)
	case oldLayout == vk.ImageLayoutTransferDstOptimal && newLayout == vk.ImageLayoutShaderReadOnlyOptimal:
		// Transitioning from a transfer destination to a shader-readonly layout.
		barrier.SrcAccessMask = vk.AccessFlags(vk.AccessTransferWriteBit)
		barrier.DstAccessMask = vk.AccessFlags(vk.AccessShaderReadBit)
		sourceStage = vk.PipelineStageFlags(vk.PipelineStageTransferBit)
		destStage = vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit)
	default:
		err := fmt.Errorf("unsupported layout transition")
		core.LogError(err.Error())
		return err
	}

	vk.CmdPipelineBarrier(commandBuffer.Handle, sourceStage, destStage, 0,
		0, nil,
		0, nil,
		1, []vk.ImageMemoryBarrier{barrier})

	return nil
}

/**
 * Records copies of the given staged regions from the buffer into the image.
 * The image must be in the transfer-destination layout.
 */
func (vi *VulkanImage) ImageCopyFromBuffer(commandBuffer *VulkanCommandBuffer, buffer vk.Buffer, regions []metadata.UploadRegion) {
	copies := make([]vk.BufferImageCopy, 0, len(regions))
	for _, region := range regions {
		copies = append(copies, vk.BufferImageCopy{
			BufferOffset:      vk.DeviceSize(region.StagingOffset),
			BufferRowLength:   0,
			BufferImageHeight: 0,
			ImageSubresource: vk.ImageSubresourceLayers{
				AspectMask:     vk.ImageAspectFlags(vk.ImageAspectColorBit),
				MipLevel:       0,
				BaseArrayLayer: region.Layer,
				LayerCount:     1,
			},
			ImageExtent: vk.Extent3D{
				Width:  vi.Width,
				Height: vi.Height,
				Depth:  1,
			},
		})
	}
	vk.CmdCopyBufferToImage(commandBuffer.Handle, buffer, vi.Handle, vk.ImageLayoutTransferDstOptimal, uint32(len(copies)), copies)
}

func (vi *VulkanImage) ImageDestroy(context *VulkanContext) {
	if vi.View != nil {
		vk.DestroyImageView(context.LogicalDevice, vi.View, context.Allocator)
		vi.View = nil
	}
	if vi.Memory != nil {
		vk.FreeMemory(context.LogicalDevice, vi.Memory, context.Allocator)
		vi.Memory = nil
	}
	if vi.Handle != nil {
		vk.DestroyImage(context.LogicalDevice, vi.Handle, context.Allocator)
		vi.Handle = nil
	}
}
